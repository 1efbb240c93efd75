package service

import (
	"Clubhouse/internal/api/dto"
	"Clubhouse/internal/model"
	"Clubhouse/internal/pkg/event"
	"context"
	log "log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jinzhu/copier"
)

// SendMessage 写消息、推进会话水位、其他在会成员未读 +1，三者同一事务
func (s *imServiceImpl) SendMessage(ctx context.Context, convID, senderID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error) {
	if convID == 0 || senderID == 0 || req == nil {
		return nil, ErrParamInvalid
	}
	if err := validateMessage(req); err != nil {
		return nil, err
	}

	var msg *model.Message
	var recipients []uint64
	err := s.tx.Exec(ctx, func(ctx context.Context) error {
		conv, err := s.lockConversation(ctx, convID)
		if err != nil {
			return err
		}
		if _, err = s.requireActive(ctx, convID, senderID, false); err != nil {
			return err
		}
		if req.ReplyToID != nil {
			reply, err := s.msgRepo.GetMessage(ctx, *req.ReplyToID)
			if err != nil {
				return err
			}
			if reply == nil || reply.ConversationID != convID || reply.IsDeleted {
				return ErrReplyToInvalid
			}
		}
		// 单聊对方离开过则随新消息重新入会
		if !conv.IsGroup() {
			if peer := conv.PeerOf(senderID); peer != 0 {
				if _, _, err = s.ensureParticipant(ctx, conv, peer); err != nil {
					return err
				}
			}
		}

		// 会话内创建时间单调不减，保证时间顺序与 ID 顺序一致
		createdAt := time.Now()
		if createdAt.Before(conv.LastMessageAt) {
			createdAt = conv.LastMessageAt
		}
		msg = &model.Message{
			ConversationID: convID,
			SenderID:       senderID,
			MsgType:        req.MsgType,
			Content:        req.Content,
			AttachmentURL:  strings.TrimSpace(req.AttachmentURL),
			ReplyToID:      req.ReplyToID,
			CreatedAt:      createdAt,
			UpdatedAt:      createdAt,
		}
		if err = s.msgRepo.CreateMessage(ctx, msg); err != nil {
			return err
		}
		if err = s.convRepo.UpdateLastMessage(ctx, convID, msg.ID, createdAt); err != nil {
			return err
		}
		if err = s.partRepo.IncrUnreadExcept(ctx, convID, senderID); err != nil {
			return err
		}
		recipients, err = s.otherActiveUsers(ctx, convID, senderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	env, err := event.NewMessageEnvelope(&event.MessageEvent{
		ConversationID: convID,
		MessageID:      msg.ID,
		SenderID:       senderID,
		RecipientIDs:   recipients,
	})
	s.dispatch(ctx, env, err)

	return toMessageDTO(msg), nil
}

func validateMessage(req *dto.SendMessageReq) error {
	if !model.ValidMsgType(req.MsgType) {
		return ErrMsgTypeInvalid
	}
	attachment := strings.TrimSpace(req.AttachmentURL)
	if attachment != "" {
		u, err := url.ParseRequestURI(attachment)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ErrAttachmentInvalid
		}
	}
	if strings.TrimSpace(req.Content) == "" {
		// 图片、文件消息可以只带附件
		onlyAttachment := req.MsgType == model.MsgTypeImage || req.MsgType == model.MsgTypeFile
		if !onlyAttachment || attachment == "" {
			return ErrMsgContentBlank
		}
	}
	return nil
}

// GetMessages 历史消息，按 ID 倒序分页；已删除消息保留占位但清空内容
func (s *imServiceImpl) GetMessages(ctx context.Context, convID, userID, beforeID uint64, pageSize int) ([]*dto.MessageDTO, error) {
	if _, err := s.getConversation(ctx, convID); err != nil {
		return nil, err
	}
	if _, err := s.requireActive(ctx, convID, userID, false); err != nil {
		return nil, err
	}
	list, err := s.msgRepo.GetHistory(ctx, convID, beforeID, s.pageSize(pageSize))
	if err != nil {
		return nil, err
	}
	res := make([]*dto.MessageDTO, 0, len(list))
	for _, m := range list {
		res = append(res, toMessageDTO(m))
	}
	return res, nil
}

// DeleteMessage 发送者软删除，其余成员未读数重算
func (s *imServiceImpl) DeleteMessage(ctx context.Context, convID, msgID, userID uint64) error {
	if convID == 0 || msgID == 0 {
		return ErrParamInvalid
	}
	return s.tx.Exec(ctx, func(ctx context.Context) error {
		if _, err := s.lockConversation(ctx, convID); err != nil {
			return err
		}
		msg, err := s.msgRepo.GetMessage(ctx, msgID)
		if err != nil {
			return err
		}
		if msg == nil || msg.ConversationID != convID {
			return ErrMessageNotFound
		}
		if msg.SenderID != userID {
			return ErrNotMessageSender
		}
		if msg.IsDeleted {
			return nil
		}
		if err = s.msgRepo.SoftDelete(ctx, msgID); err != nil {
			return err
		}
		_, err = s.recompute(ctx, convID)
		return err
	})
}

// MarkRead 为 (游标, upTo] 内他人发送的未读消息写回执，然后重算未读数
func (s *imServiceImpl) MarkRead(ctx context.Context, convID, userID uint64, upToMessageID *uint64) (*dto.MarkReadDTO, error) {
	if convID == 0 || userID == 0 {
		return nil, ErrParamInvalid
	}

	res := &dto.MarkReadDTO{ConversationID: convID}
	var recipients []uint64
	err := s.tx.Exec(ctx, func(ctx context.Context) error {
		conv, err := s.lockConversation(ctx, convID)
		if err != nil {
			return err
		}
		p, err := s.requireActive(ctx, convID, userID, true)
		if err != nil {
			return err
		}

		target := conv.LastMessageID
		targetAt := conv.LastMessageAt
		if upToMessageID != nil {
			msg, err := s.msgRepo.GetMessage(ctx, *upToMessageID)
			if err != nil {
				return err
			}
			if msg == nil {
				return ErrMessageNotFound
			}
			if msg.ConversationID != convID {
				return ErrReadPositionInvalid
			}
			target, targetAt = msg.ID, msg.CreatedAt
		}

		res.ReadUpTo = p.ReadMsgID
		res.UnreadCount = p.UnreadCount
		res.LastReadAt = p.LastReadAt
		if target <= p.ReadMsgID {
			return nil
		}

		unread, err := s.msgRepo.ListUnreadMessages(ctx, convID, userID, p.ReadMsgID, target)
		if err != nil {
			return err
		}
		now := time.Now()
		receipts := make([]*model.ReadReceipt, 0, len(unread))
		for _, m := range unread {
			receipts = append(receipts, &model.ReadReceipt{
				MessageID:      m.ID,
				UserID:         userID,
				ConversationID: convID,
				ReadAt:         now,
			})
		}
		if res.NewReceipts, err = s.receiptRepo.CreateReceipts(ctx, receipts); err != nil {
			return err
		}

		count, err := s.msgRepo.CountUnread(ctx, convID, userID, target)
		if err != nil {
			return err
		}
		lastReadAt := targetAt
		if err = s.partRepo.UpdateReadState(ctx, p.ID, target, &lastReadAt, count); err != nil {
			return err
		}
		res.ReadUpTo, res.UnreadCount, res.LastReadAt = target, count, &lastReadAt

		if res.NewReceipts > 0 {
			recipients, err = s.otherActiveUsers(ctx, convID, userID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if res.NewReceipts > 0 {
		env, err := event.NewReadEnvelope(&event.ReadEvent{
			ConversationID: convID,
			UserID:         userID,
			ReadUpTo:       res.ReadUpTo,
			ReceiptCount:   res.NewReceipts,
		}, recipients)
		s.dispatch(ctx, env, err)
	}
	return res, nil
}

// RecomputeUnread 从消息与回执重算会话内所有在会成员的未读数，返回发生偏差的成员数
func (s *imServiceImpl) RecomputeUnread(ctx context.Context, convID uint64) (int, error) {
	var drifted int
	err := s.tx.Exec(ctx, func(ctx context.Context) error {
		if _, err := s.lockConversation(ctx, convID); err != nil {
			return err
		}
		var err error
		drifted, err = s.recompute(ctx, convID)
		return err
	})
	return drifted, err
}

// recompute 需在持有会话行锁的事务中调用
func (s *imServiceImpl) recompute(ctx context.Context, convID uint64) (int, error) {
	list, err := s.partRepo.ListActiveParticipants(ctx, convID)
	if err != nil {
		return 0, err
	}
	drifted := 0
	for _, p := range list {
		count, err := s.msgRepo.CountUnread(ctx, convID, p.UserID, p.ReadMsgID)
		if err != nil {
			return 0, err
		}
		if count == p.UnreadCount {
			continue
		}
		drifted++
		log.InfoContext(ctx, "Unread count recomputed",
			"conversation_id", convID, "user_id", p.UserID, "old", p.UnreadCount, "new", count)
		if err = s.partRepo.UpdateUnreadCount(ctx, p.ID, count); err != nil {
			return 0, err
		}
	}
	return drifted, nil
}

func (s *imServiceImpl) otherActiveUsers(ctx context.Context, convID, exclude uint64) ([]uint64, error) {
	ids, err := s.partRepo.ListActiveUserIDs(ctx, convID)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out, nil
}

func toMessageDTO(m *model.Message) *dto.MessageDTO {
	d := &dto.MessageDTO{}
	_ = copier.Copy(d, m)
	if m.IsDeleted {
		d.Content = ""
		d.AttachmentURL = ""
	}
	return d
}

package service

import (
	"Clubhouse/internal/api/dto"
	"Clubhouse/internal/model"
	"Clubhouse/internal/pkg/event"
	"Clubhouse/internal/repository"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"time"

	"github.com/jinzhu/copier"
	"gorm.io/gorm"
)

// directCreateAttempts 单聊创建遇到唯一键冲突时按查询重试的次数
const directCreateAttempts = 3

// IMService 私信核心：会话、成员、消息与已读
type IMService interface {
	GetOrCreateDirectConversation(ctx context.Context, userID, targetUserID uint64) (*dto.ConversationDTO, error)
	CreateGroupConversation(ctx context.Context, creatorID uint64, name string, userIDs []uint64) (*dto.GroupCreateDTO, error)
	AddParticipant(ctx context.Context, convID, userID uint64) (*dto.ParticipantDTO, error)
	AddParticipantToGroup(ctx context.Context, convID, userID, requesterID uint64) (*dto.ParticipantDTO, error)
	RemoveParticipant(ctx context.Context, convID, targetID, requesterID uint64) error
	LeaveConversation(ctx context.Context, convID, userID uint64) error
	RenameConversation(ctx context.Context, convID, requesterID uint64, name string) (*dto.ConversationDTO, error)
	ListConversations(ctx context.Context, userID uint64, page, pageSize int) (*dto.ConversationPageDTO, error)
	SearchConversations(ctx context.Context, userID uint64, term string, page, pageSize int) (*dto.ConversationPageDTO, error)
	ListParticipants(ctx context.Context, convID, requesterID uint64) ([]*dto.ParticipantDTO, error)

	SendMessage(ctx context.Context, convID, senderID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error)
	GetMessages(ctx context.Context, convID, userID, beforeID uint64, pageSize int) ([]*dto.MessageDTO, error)
	DeleteMessage(ctx context.Context, convID, msgID, userID uint64) error
	MarkRead(ctx context.Context, convID, userID uint64, upToMessageID *uint64) (*dto.MarkReadDTO, error)
	GetTotalUnread(ctx context.Context, userID uint64) (int64, error)
	RecomputeUnread(ctx context.Context, convID uint64) (int, error)
}

// EventDispatcher 事务提交后的事件出口
type EventDispatcher interface {
	Dispatch(env *event.Envelope) error
}

// IMOptions 分页参数
type IMOptions struct {
	DefaultPageSize int
	MaxPageSize     int
}

type imServiceImpl struct {
	tx          repository.Transaction
	convRepo    repository.ConversationRepo
	partRepo    repository.ParticipantRepo
	msgRepo     repository.MessageRepo
	receiptRepo repository.ReadReceiptRepo
	users       UserResolver
	events      EventDispatcher
	opts        IMOptions
}

func NewIMService(
	tx repository.Transaction,
	convRepo repository.ConversationRepo,
	partRepo repository.ParticipantRepo,
	msgRepo repository.MessageRepo,
	receiptRepo repository.ReadReceiptRepo,
	users UserResolver,
	events EventDispatcher,
	opts IMOptions,
) IMService {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 20
	}
	if opts.MaxPageSize < opts.DefaultPageSize {
		opts.MaxPageSize = opts.DefaultPageSize
	}
	return &imServiceImpl{
		tx:          tx,
		convRepo:    convRepo,
		partRepo:    partRepo,
		msgRepo:     msgRepo,
		receiptRepo: receiptRepo,
		users:       users,
		events:      events,
		opts:        opts,
	}
}

// GetOrCreateDirectConversation 单聊按 PeerKey 唯一，并发创建时冲突方改为查询
func (s *imServiceImpl) GetOrCreateDirectConversation(ctx context.Context, userID, targetUserID uint64) (*dto.ConversationDTO, error) {
	if userID == 0 || targetUserID == 0 {
		return nil, ErrParamInvalid
	}
	if userID == targetUserID {
		return nil, ErrSelfConversation
	}
	if err := s.requireUsers(ctx, userID, targetUserID); err != nil {
		return nil, err
	}

	peerKey := model.PeerKeyOf(userID, targetUserID)
	for attempt := 1; attempt <= directCreateAttempts; attempt++ {
		var conv *model.Conversation
		var self *model.Participant
		err := s.tx.Exec(ctx, func(ctx context.Context) error {
			var err error
			conv, err = s.convRepo.GetConversationByPeerKey(ctx, peerKey)
			if err != nil {
				return err
			}
			if conv == nil {
				conv, err = s.createDirect(ctx, peerKey, userID, targetUserID)
				if err != nil {
					return err
				}
			} else if conv, err = s.convRepo.GetConversationForUpdate(ctx, conv.ID); err != nil {
				return err
			}
			// 任一方离开过则重新入会
			for _, uid := range []uint64{targetUserID, userID} {
				p, _, err := s.ensureParticipant(ctx, conv, uid)
				if err != nil {
					return err
				}
				if uid == userID {
					self = p
				}
			}
			return nil
		})
		if errors.Is(err, ErrConversationConflict) {
			log.InfoContext(ctx, "Direct conversation created concurrently, retrying as lookup",
				"peer_key", peerKey, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}
		return s.toConversationDTO(conv, self, userID), nil
	}
	return nil, fmt.Errorf("get or create direct conversation %s: %w", peerKey, UnExpectedError)
}

func (s *imServiceImpl) createDirect(ctx context.Context, peerKey string, userID, targetUserID uint64) (*model.Conversation, error) {
	conv := &model.Conversation{
		Type:          model.ConversationTypeDirect,
		PeerKey:       &peerKey,
		CreatorID:     userID,
		LastMessageAt: time.Now(),
	}
	if err := s.convRepo.CreateConversation(ctx, conv); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrConversationConflict
		}
		return nil, err
	}
	return conv, nil
}

// CreateGroupConversation 建群，单个成员邀请失败只记录，不影响整体
func (s *imServiceImpl) CreateGroupConversation(ctx context.Context, creatorID uint64, name string, userIDs []uint64) (*dto.GroupCreateDTO, error) {
	name = strings.TrimSpace(name)
	if creatorID == 0 {
		return nil, ErrParamInvalid
	}
	if name == "" {
		return nil, ErrGroupNameBlank
	}
	if len(userIDs) == 0 {
		return nil, ErrGroupMembersEmpty
	}

	invitees := make([]uint64, 0, len(userIDs))
	for _, id := range uniqueIDs(userIDs) {
		if id != creatorID {
			invitees = append(invitees, id)
		}
	}

	profiles, err := s.users.Resolve(ctx, append([]uint64{creatorID}, invitees...))
	if err != nil {
		return nil, fmt.Errorf("resolve group members: %w", err)
	}
	if _, ok := profiles[creatorID]; !ok {
		return nil, ErrUserUnavailable
	}

	res := &dto.GroupCreateDTO{
		AddedUserIDs: make([]uint64, 0, len(invitees)),
		Failures:     make([]dto.InviteFailureDTO, 0),
	}
	err = s.tx.Exec(ctx, func(ctx context.Context) error {
		conv := &model.Conversation{
			Type:          model.ConversationTypeGroup,
			Name:          name,
			CreatorID:     creatorID,
			LastMessageAt: time.Now(),
		}
		if err := s.convRepo.CreateConversation(ctx, conv); err != nil {
			return err
		}
		creator, _, err := s.ensureParticipant(ctx, conv, creatorID)
		if err != nil {
			return err
		}
		res.Conversation = s.toConversationDTO(conv, creator, creatorID)

		for _, uid := range invitees {
			if _, ok := profiles[uid]; !ok {
				log.WarnContext(ctx, "Skip unavailable group invitee", "conversation_id", conv.ID, "user_id", uid)
				res.Failures = append(res.Failures, dto.InviteFailureDTO{UserID: uid, Reason: ErrUserUnavailable.Error()})
				continue
			}
			// 每个成员单独一个保存点，失败只回滚自己
			err := s.tx.Exec(ctx, func(ctx context.Context) error {
				_, _, err := s.ensureParticipant(ctx, conv, uid)
				return err
			})
			if err != nil {
				log.WarnContext(ctx, "Failed to add group invitee", "conversation_id", conv.ID, "user_id", uid, "err", err)
				res.Failures = append(res.Failures, dto.InviteFailureDTO{UserID: uid, Reason: err.Error()})
				continue
			}
			res.AddedUserIDs = append(res.AddedUserIDs, uid)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.AddedCount = len(res.AddedUserIDs)
	log.InfoContext(ctx, "Group conversation created",
		"conversation_id", res.Conversation.ConversationID, "added", res.AddedCount, "failed", len(res.Failures))
	return res, nil
}

// AddParticipant 已在会则直接返回；单聊只允许原双方重新入会
func (s *imServiceImpl) AddParticipant(ctx context.Context, convID, userID uint64) (*dto.ParticipantDTO, error) {
	if convID == 0 || userID == 0 {
		return nil, ErrParamInvalid
	}
	if err := s.requireUsers(ctx, userID); err != nil {
		return nil, err
	}

	var p *model.Participant
	err := s.tx.Exec(ctx, func(ctx context.Context) error {
		conv, err := s.lockConversation(ctx, convID)
		if err != nil {
			return err
		}
		if !conv.IsGroup() && conv.PeerOf(userID) == 0 {
			return ErrDirectConversation
		}
		p, _, err = s.ensureParticipant(ctx, conv, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toParticipantDTO(p, ""), nil
}

// AddParticipantToGroup 只有在会成员可以邀请
func (s *imServiceImpl) AddParticipantToGroup(ctx context.Context, convID, userID, requesterID uint64) (*dto.ParticipantDTO, error) {
	if convID == 0 || userID == 0 {
		return nil, ErrParamInvalid
	}

	conv, err := s.getConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup() {
		return nil, ErrDirectConversation
	}
	if err = s.requireUsers(ctx, userID); err != nil {
		return nil, err
	}

	var p *model.Participant
	err = s.tx.Exec(ctx, func(ctx context.Context) error {
		conv, err := s.lockConversation(ctx, convID)
		if err != nil {
			return err
		}
		if _, err = s.requireActive(ctx, convID, requesterID, false); err != nil {
			return err
		}
		var created bool
		p, created, err = s.ensureParticipant(ctx, conv, userID)
		if err == nil && created {
			log.InfoContext(ctx, "Participant invited", "conversation_id", convID, "user_id", userID, "inviter", requesterID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return toParticipantDTO(p, ""), nil
}

// RemoveParticipant 群主可以移除任何人，其他成员只能移除自己
func (s *imServiceImpl) RemoveParticipant(ctx context.Context, convID, targetID, requesterID uint64) error {
	if convID == 0 || targetID == 0 {
		return ErrParamInvalid
	}
	return s.tx.Exec(ctx, func(ctx context.Context) error {
		conv, err := s.lockConversation(ctx, convID)
		if err != nil {
			return err
		}
		if !conv.IsGroup() {
			return ErrDirectConversation
		}
		if _, err = s.requireActive(ctx, convID, requesterID, false); err != nil {
			return err
		}
		if requesterID != targetID && requesterID != conv.CreatorID {
			return ErrRemoveNotAllowed
		}
		target, err := s.requireActive(ctx, convID, targetID, true)
		if err != nil {
			return err
		}
		if err = s.partRepo.Deactivate(ctx, target.ID, time.Now()); err != nil {
			return err
		}
		log.InfoContext(ctx, "Participant removed", "conversation_id", convID, "user_id", targetID, "operator", requesterID)
		return nil
	})
}

// LeaveConversation 离开会话，成员行保留
func (s *imServiceImpl) LeaveConversation(ctx context.Context, convID, userID uint64) error {
	if convID == 0 || userID == 0 {
		return ErrParamInvalid
	}
	return s.tx.Exec(ctx, func(ctx context.Context) error {
		if _, err := s.lockConversation(ctx, convID); err != nil {
			return err
		}
		p, err := s.requireActive(ctx, convID, userID, true)
		if err != nil {
			return err
		}
		return s.partRepo.Deactivate(ctx, p.ID, time.Now())
	})
}

// RenameConversation 只能重命名群聊
func (s *imServiceImpl) RenameConversation(ctx context.Context, convID, requesterID uint64, name string) (*dto.ConversationDTO, error) {
	name = strings.TrimSpace(name)
	if convID == 0 {
		return nil, ErrParamInvalid
	}
	if name == "" {
		return nil, ErrGroupNameBlank
	}

	var res *dto.ConversationDTO
	err := s.tx.Exec(ctx, func(ctx context.Context) error {
		conv, err := s.lockConversation(ctx, convID)
		if err != nil {
			return err
		}
		if !conv.IsGroup() {
			return ErrDirectConversation
		}
		p, err := s.requireActive(ctx, convID, requesterID, false)
		if err != nil {
			return err
		}
		if err = s.convRepo.UpdateName(ctx, convID, name); err != nil {
			return err
		}
		conv.Name = name
		res = s.toConversationDTO(conv, p, requesterID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ListConversations 收件箱，按最近消息时间倒序
func (s *imServiceImpl) ListConversations(ctx context.Context, userID uint64, page, pageSize int) (*dto.ConversationPageDTO, error) {
	return s.pageConversations(ctx, userID, "", page, pageSize)
}

// SearchConversations 按名称模糊搜索自己的会话，空关键词等同于列表
func (s *imServiceImpl) SearchConversations(ctx context.Context, userID uint64, term string, page, pageSize int) (*dto.ConversationPageDTO, error) {
	return s.pageConversations(ctx, userID, strings.TrimSpace(term), page, pageSize)
}

func (s *imServiceImpl) pageConversations(ctx context.Context, userID uint64, term string, page, pageSize int) (*dto.ConversationPageDTO, error) {
	if userID == 0 {
		return nil, ErrParamInvalid
	}
	if page < 1 {
		page = 1
	}
	pageSize = s.pageSize(pageSize)

	total, err := s.convRepo.CountUserConversations(ctx, userID, term)
	if err != nil {
		return nil, err
	}
	items, err := s.convRepo.ListUserConversations(ctx, userID, term, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	list := make([]*dto.ConversationDTO, 0, len(items))
	for _, item := range items {
		d := &dto.ConversationDTO{}
		_ = copier.Copy(d, item)
		d.IsGroup = item.Type == model.ConversationTypeGroup
		if !d.IsGroup {
			conv := model.Conversation{PeerKey: item.PeerKey}
			d.PeerID = conv.PeerOf(userID)
		}
		list = append(list, d)
	}
	return &dto.ConversationPageDTO{List: list, Total: total, Page: page, PageSize: pageSize}, nil
}

// ListParticipants 在会成员列表，昵称尽力补全
func (s *imServiceImpl) ListParticipants(ctx context.Context, convID, requesterID uint64) ([]*dto.ParticipantDTO, error) {
	if _, err := s.getConversation(ctx, convID); err != nil {
		return nil, err
	}
	if _, err := s.requireActive(ctx, convID, requesterID, false); err != nil {
		return nil, err
	}
	list, err := s.partRepo.ListActiveParticipants(ctx, convID)
	if err != nil {
		return nil, err
	}

	ids := make([]uint64, 0, len(list))
	for _, p := range list {
		ids = append(ids, p.UserID)
	}
	profiles, err := s.users.Resolve(ctx, ids)
	if err != nil {
		log.WarnContext(ctx, "Failed to resolve participant profiles", "conversation_id", convID, "err", err)
	}

	res := make([]*dto.ParticipantDTO, 0, len(list))
	for _, p := range list {
		var nickname string
		if prof, ok := profiles[p.UserID]; ok {
			nickname = prof.Nickname
		}
		res = append(res, toParticipantDTO(p, nickname))
	}
	return res, nil
}

func (s *imServiceImpl) GetTotalUnread(ctx context.Context, userID uint64) (int64, error) {
	if userID == 0 {
		return 0, ErrParamInvalid
	}
	return s.partRepo.GetTotalUnreadCount(ctx, userID)
}

// ensureParticipant 已在会直接返回，否则新建一段入会周期
// 新成员的已读游标从会话当前最新消息开始
func (s *imServiceImpl) ensureParticipant(ctx context.Context, conv *model.Conversation, userID uint64) (*model.Participant, bool, error) {
	p, err := s.partRepo.GetActiveParticipant(ctx, conv.ID, userID)
	if err != nil || p != nil {
		return p, false, err
	}
	p = &model.Participant{
		ConversationID: conv.ID,
		UserID:         userID,
		ReadMsgID:      conv.LastMessageID,
		JoinedAt:       time.Now(),
	}
	err = s.partRepo.CreateParticipant(ctx, p)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		p, err = s.partRepo.GetActiveParticipant(ctx, conv.ID, userID)
		return p, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func (s *imServiceImpl) getConversation(ctx context.Context, convID uint64) (*model.Conversation, error) {
	conv, err := s.convRepo.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

// lockConversation 同一会话的写操作在会话行锁上串行
func (s *imServiceImpl) lockConversation(ctx context.Context, convID uint64) (*model.Conversation, error) {
	conv, err := s.convRepo.GetConversationForUpdate(ctx, convID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

func (s *imServiceImpl) requireActive(ctx context.Context, convID, userID uint64, forUpdate bool) (*model.Participant, error) {
	var p *model.Participant
	var err error
	if forUpdate {
		p, err = s.partRepo.GetActiveParticipantForUpdate(ctx, convID, userID)
	} else {
		p, err = s.partRepo.GetActiveParticipant(ctx, convID, userID)
	}
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotParticipant
	}
	return p, nil
}

func (s *imServiceImpl) requireUsers(ctx context.Context, ids ...uint64) error {
	profiles, err := s.users.Resolve(ctx, ids)
	if err != nil {
		return fmt.Errorf("resolve users: %w", err)
	}
	for _, id := range ids {
		if _, ok := profiles[id]; !ok {
			return ErrUserUnavailable
		}
	}
	return nil
}

func (s *imServiceImpl) pageSize(size int) int {
	if size <= 0 {
		return s.opts.DefaultPageSize
	}
	if size > s.opts.MaxPageSize {
		return s.opts.MaxPageSize
	}
	return size
}

func (s *imServiceImpl) dispatch(ctx context.Context, env *event.Envelope, err error) {
	if err != nil {
		log.ErrorContext(ctx, "Failed to build event", "err", err)
		return
	}
	if s.events == nil || env == nil {
		return
	}
	if err = s.events.Dispatch(env); err != nil {
		log.WarnContext(ctx, "Failed to dispatch event", "event_id", env.ID, "type", env.Type, "err", err)
	}
}

func (s *imServiceImpl) toConversationDTO(conv *model.Conversation, p *model.Participant, viewerID uint64) *dto.ConversationDTO {
	d := &dto.ConversationDTO{
		ConversationID: conv.ID,
		Type:           conv.Type,
		IsGroup:        conv.IsGroup(),
		Name:           conv.Name,
		CreatorID:      conv.CreatorID,
		LastMessageID:  conv.LastMessageID,
		LastMessageAt:  conv.LastMessageAt,
		CreatedAt:      conv.CreatedAt,
	}
	if !d.IsGroup {
		d.PeerID = conv.PeerOf(viewerID)
	}
	if p != nil {
		d.UnreadCount = p.UnreadCount
		d.LastReadAt = p.LastReadAt
		d.JoinedAt = p.JoinedAt
	}
	return d
}

func toParticipantDTO(p *model.Participant, nickname string) *dto.ParticipantDTO {
	d := &dto.ParticipantDTO{}
	_ = copier.Copy(d, p)
	d.Nickname = nickname
	return d
}

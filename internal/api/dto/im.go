package dto

import "time"

// CreateDirectReq 发起单聊
type CreateDirectReq struct {
	TargetUserID uint64 `json:"target_user_id" binding:"required"`
}

// CreateGroupReq 创建群聊
type CreateGroupReq struct {
	Name    string   `json:"name" binding:"required,max=100"`
	UserIDs []uint64 `json:"user_ids" binding:"required,min=1,max=200"`
}

type RenameConversationReq struct {
	Name string `json:"name" binding:"required,max=100"`
}

type AddParticipantReq struct {
	UserID uint64 `json:"user_id" binding:"required"`
}

// SendMessageReq 发送消息请求体
type SendMessageReq struct {
	MsgType       int8    `json:"msg_type" binding:"required,min=1,max=4"` // 1-文本, 2-图片, 3-文件, 4-系统
	Content       string  `json:"content" binding:"max=5000"`
	AttachmentURL string  `json:"attachment_url" binding:"max=1024"`
	ReplyToID     *uint64 `json:"reply_to_id"`
}

// MarkReadReq 标记已读，up_to_message_id 为空表示全部已读
type MarkReadReq struct {
	UpToMessageID *uint64 `json:"up_to_message_id"`
}

// ConversationDTO 会话视图
type ConversationDTO struct {
	ConversationID uint64     `json:"conversation_id"`
	Type           int8       `json:"type"` // 1-单聊, 2-群聊
	IsGroup        bool       `json:"is_group"`
	Name           string     `json:"name"`
	PeerID         uint64     `json:"peer_id,omitempty"`
	CreatorID      uint64     `json:"creator_id"`
	LastMessageID  uint64     `json:"last_message_id"`
	LastMessageAt  time.Time  `json:"last_message_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UnreadCount    int64      `json:"unread_count"`
	LastReadAt     *time.Time `json:"last_read_at"`
	JoinedAt       time.Time  `json:"joined_at"`
}

// ConversationPageDTO 会话分页
type ConversationPageDTO struct {
	List     []*ConversationDTO `json:"list"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

// ParticipantDTO 成员视图
type ParticipantDTO struct {
	ConversationID uint64     `json:"conversation_id"`
	UserID         uint64     `json:"user_id"`
	Nickname       string     `json:"nickname,omitempty"`
	IsActive       bool       `json:"is_active"`
	UnreadCount    int64      `json:"unread_count"`
	LastReadAt     *time.Time `json:"last_read_at"`
	JoinedAt       time.Time  `json:"joined_at"`
	LeftAt         *time.Time `json:"left_at"`
}

// InviteFailureDTO 邀请失败项
type InviteFailureDTO struct {
	UserID uint64 `json:"user_id"`
	Reason string `json:"reason"`
}

// GroupCreateDTO 建群结果，部分邀请失败不算错误
type GroupCreateDTO struct {
	Conversation *ConversationDTO   `json:"conversation"`
	AddedUserIDs []uint64           `json:"added_user_ids"`
	AddedCount   int                `json:"added_count"`
	Failures     []InviteFailureDTO `json:"failures"`
}

// MessageDTO 消息视图
type MessageDTO struct {
	ID             uint64    `json:"id"`
	ConversationID uint64    `json:"conversation_id"`
	SenderID       uint64    `json:"sender_id"`
	MsgType        int8      `json:"msg_type"`
	Content        string    `json:"content"`
	AttachmentURL  string    `json:"attachment_url,omitempty"`
	ReplyToID      *uint64   `json:"reply_to_id,omitempty"`
	IsDeleted      bool      `json:"is_deleted"`
	CreatedAt      time.Time `json:"created_at"`
}

// MarkReadDTO 已读结果
type MarkReadDTO struct {
	ConversationID uint64     `json:"conversation_id"`
	ReadUpTo       uint64     `json:"read_up_to"`
	NewReceipts    int64      `json:"new_receipts"`
	UnreadCount    int64      `json:"unread_count"`
	LastReadAt     *time.Time `json:"last_read_at"`
}

type UnreadDTO struct {
	Total int64 `json:"total"`
}

package model

import "time"

const (
	MsgTypeText   int8 = 1
	MsgTypeImage  int8 = 2
	MsgTypeFile   int8 = 3
	MsgTypeSystem int8 = 4
)

// Message 私信消息，只做软删除
type Message struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint64    `gorm:"not null;index:idx_message_conv_id,priority:1" json:"conversationId"`
	SenderID       uint64    `gorm:"not null;index" json:"senderId"`
	MsgType        int8      `gorm:"not null;default:1" json:"msgType"` // 1-文本, 2-图片, 3-文件, 4-系统
	Content        string    `gorm:"type:text" json:"content"`
	AttachmentURL  string    `gorm:"type:varchar(1024);not null;default:''" json:"attachmentUrl"`
	ReplyToID      *uint64   `json:"replyToId"`
	IsDeleted      bool      `gorm:"not null;default:false" json:"isDeleted"`
	CreatedAt      time.Time `gorm:"index:idx_message_conv_id,priority:2" json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (Message) TableName() string { return "messages" }

// ReadReceipt 已读回执，(message_id, user_id) 唯一
type ReadReceipt struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageID      uint64    `gorm:"not null;uniqueIndex:idx_receipt_msg_user" json:"messageId"`
	UserID         uint64    `gorm:"not null;uniqueIndex:idx_receipt_msg_user;index" json:"userId"`
	ConversationID uint64    `gorm:"not null;index" json:"conversationId"`
	ReadAt         time.Time `gorm:"not null" json:"readAt"`
}

func (ReadReceipt) TableName() string { return "read_receipts" }

// ValidMsgType 是否是已知的消息类型
func ValidMsgType(t int8) bool {
	return t >= MsgTypeText && t <= MsgTypeSystem
}

package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	ConversationTypeDirect int8 = 1
	ConversationTypeGroup  int8 = 2
)

// Conversation 会话主表
type Conversation struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Type          int8      `gorm:"not null;default:1" json:"type"`                        // 1-单聊, 2-群聊
	Name          string    `gorm:"type:varchar(100);not null;default:''" json:"name"`     // 群聊必填
	PeerKey       *string   `gorm:"uniqueIndex;type:varchar(64)" json:"peerKey,omitempty"` // 单聊 uid1_uid2, 群聊为 NULL
	CreatorID     uint64    `gorm:"not null;index" json:"creatorId"`
	LastMessageID uint64    `gorm:"not null;default:0" json:"lastMessageId"` // 最新消息 ID，入会水位线
	LastMessageAt time.Time `gorm:"index" json:"lastMessageAt"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (Conversation) TableName() string { return "conversations" }

func (c *Conversation) IsGroup() bool { return c.Type == ConversationTypeGroup }

// PeerKeyOf 单聊唯一标识，小 ID 在前
func PeerKeyOf(userA, userB uint64) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("%d_%d", userA, userB)
}

// PeerUsers 解析单聊双方
func (c *Conversation) PeerUsers() (uint64, uint64, bool) {
	if c.PeerKey == nil {
		return 0, 0, false
	}
	a, b, ok := strings.Cut(*c.PeerKey, "_")
	if !ok {
		return 0, 0, false
	}
	ua, errA := strconv.ParseUint(a, 10, 64)
	ub, errB := strconv.ParseUint(b, 10, 64)
	if errA != nil || errB != nil {
		return 0, 0, false
	}
	return ua, ub, true
}

// PeerOf 单聊中对方的 ID，不是单聊成员时返回 0
func (c *Conversation) PeerOf(userID uint64) uint64 {
	a, b, ok := c.PeerUsers()
	switch {
	case !ok:
		return 0
	case a == userID:
		return b
	case b == userID:
		return a
	}
	return 0
}

// Participant 会话成员表，每段入会周期一行
type Participant struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint64     `gorm:"not null;index:idx_participant_conv_user" json:"conversationId"`
	UserID         uint64     `gorm:"not null;index:idx_participant_conv_user;index" json:"userId"`
	ActiveKey      *string    `gorm:"uniqueIndex;type:varchar(64)" json:"-"` // 在会时为 convID_userID，离开后置 NULL
	IsActive       bool       `gorm:"not null;default:true;index" json:"isActive"`
	UnreadCount    int64      `gorm:"not null;default:0" json:"unreadCount"`
	ReadMsgID      uint64     `gorm:"not null;default:0" json:"readMsgId"` // 已读游标
	LastReadAt     *time.Time `json:"lastReadAt"`
	JoinedAt       time.Time  `gorm:"not null" json:"joinedAt"`
	LeftAt         *time.Time `json:"leftAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (Participant) TableName() string { return "conversation_participants" }

// ActiveKeyOf 在会成员唯一键
func ActiveKeyOf(convID, userID uint64) string {
	return fmt.Sprintf("%d_%d", convID, userID)
}

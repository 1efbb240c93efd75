package event

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Type 事件类型
type Type string

const (
	TypeMessage Type = "MESSAGE"
	TypeRead    Type = "READ"
)

// Envelope 对外投递的事件信封，Recipients 是需要收到该事件的用户
type Envelope struct {
	ID             string          `json:"id" bson:"id"`
	Type           Type            `json:"type" bson:"type"`
	ConversationID uint64          `json:"conversationId" bson:"conversation_id"`
	Recipients     []uint64        `json:"recipients" bson:"recipients"`
	Payload        json.RawMessage `json:"payload" bson:"payload"`
	CreatedAt      time.Time       `json:"createdAt" bson:"created_at"`
}

// MessageEvent 新消息通知
type MessageEvent struct {
	ConversationID uint64   `json:"conversationId"`
	MessageID      uint64   `json:"messageId"`
	SenderID       uint64   `json:"senderId"`
	RecipientIDs   []uint64 `json:"recipientIds"`
}

// ReadEvent 已读回执通知
type ReadEvent struct {
	ConversationID uint64 `json:"conversationId"`
	UserID         uint64 `json:"userId"`
	ReadUpTo       uint64 `json:"readUpTo"`
	ReceiptCount   int64  `json:"receiptCount"`
}

func NewMessageEnvelope(e *MessageEvent) (*Envelope, error) {
	return newEnvelope(TypeMessage, e.ConversationID, e.RecipientIDs, e)
}

func NewReadEnvelope(e *ReadEvent, recipients []uint64) (*Envelope, error) {
	return newEnvelope(TypeRead, e.ConversationID, recipients, e)
}

func newEnvelope(t Type, convID uint64, recipients []uint64, v any) (*Envelope, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:             uuid.NewString(),
		Type:           t,
		ConversationID: convID,
		Recipients:     recipients,
		Payload:        payload,
		CreatedAt:      time.Now(),
	}, nil
}

package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DeadLetter 投递失败的私信事件，EventID 唯一，Attempts 记录死信重放次数
type DeadLetter struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EventID        string             `bson:"event_id" json:"eventId"`
	Type           string             `bson:"type" json:"type"`
	ConversationID uint64             `bson:"conversation_id" json:"conversationId"`
	Recipients     []uint64           `bson:"recipients" json:"recipients"`
	Payload        string             `bson:"payload" json:"payload"`
	Reason         string             `bson:"reason" json:"reason"`
	Attempts       int                `bson:"attempts" json:"attempts"`
	Resolved       bool               `bson:"resolved" json:"resolved"`
	EventAt        time.Time          `bson:"event_at" json:"eventAt"`
	CreatedAt      time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updatedAt"`
}

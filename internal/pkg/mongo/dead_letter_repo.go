package mongo

import (
	"Clubhouse/internal/pkg/consts"
	"Clubhouse/internal/pkg/event"
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type DeadLetterRepo interface {
	event.DeadLetterSink
	ListPending(ctx context.Context, maxAttempts int, limit int64) ([]*DeadLetter, error)
	MarkResolved(ctx context.Context, id primitive.ObjectID) error
	MarkFailed(ctx context.Context, id primitive.ObjectID, reason string) error
}

type deadLetterRepoImpl struct {
	col *mongo.Collection
}

func NewDeadLetterRepo(db *mongo.Database) DeadLetterRepo {
	return &deadLetterRepoImpl{
		col: db.Collection(consts.DeadLetterCollection),
	}
}

func ensureDeadLetterIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(consts.DeadLetterCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "event_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "resolved", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	return err
}

// SaveDeadLetter 同一事件重复失败时只更新原因
func (s *deadLetterRepoImpl) SaveDeadLetter(ctx context.Context, env *event.Envelope, reason string) error {
	now := time.Now()
	filter := bson.M{"event_id": env.ID}
	update := bson.M{
		"$set": bson.M{
			"reason":     reason,
			"resolved":   false,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"type":            string(env.Type),
			"conversation_id": env.ConversationID,
			"recipients":      env.Recipients,
			"payload":         string(env.Payload),
			"attempts":        0,
			"event_at":        env.CreatedAt,
			"created_at":      now,
		},
	}
	_, err := s.col.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// ListPending 按时间顺序取待重放的死信
func (s *deadLetterRepoImpl) ListPending(ctx context.Context, maxAttempts int, limit int64) ([]*DeadLetter, error) {
	filter := bson.M{"resolved": false, "attempts": bson.M{"$lt": maxAttempts}}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(limit)

	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var list []*DeadLetter
	if err = cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *deadLetterRepoImpl) MarkResolved(ctx context.Context, id primitive.ObjectID) error {
	update := bson.M{"$set": bson.M{"resolved": true, "updated_at": time.Now()}}
	_, err := s.col.UpdateByID(ctx, id, update)
	return err
}

func (s *deadLetterRepoImpl) MarkFailed(ctx context.Context, id primitive.ObjectID, reason string) error {
	update := bson.M{
		"$set": bson.M{"reason": reason, "updated_at": time.Now()},
		"$inc": bson.M{"attempts": 1},
	}
	_, err := s.col.UpdateByID(ctx, id, update)
	return err
}

// ToEnvelope 还原事件信封
func (d *DeadLetter) ToEnvelope() *event.Envelope {
	return &event.Envelope{
		ID:             d.EventID,
		Type:           event.Type(d.Type),
		ConversationID: d.ConversationID,
		Recipients:     d.Recipients,
		Payload:        []byte(d.Payload),
		CreatedAt:      d.EventAt,
	}
}

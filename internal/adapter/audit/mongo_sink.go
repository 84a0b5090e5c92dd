package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rl1809/wip-inventory/internal/port"
)

var _ port.AuditSink = (*MongoSink)(nil)

const auditCollection = "inventory_audit"

// MongoSink stores each audit event as a document in inventory_audit.
type MongoSink struct {
	col   *mongo.Collection
	newID func() string
}

func NewMongoSink(client *mongo.Client, dbName string) *MongoSink {
	return newMongoSink(client.Database(dbName).Collection(auditCollection))
}

func newMongoSink(col *mongo.Collection) *MongoSink {
	return &MongoSink{col: col, newID: uuid.NewString}
}

// EnsureIndexes creates the event_id unique index and the lookup indexes.
func (m *MongoSink) EnsureIndexes(ctx context.Context) error {
	_, err := m.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "event_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "occurred_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "occurred_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create audit indexes: %w", err)
	}
	return nil
}

func (m *MongoSink) Record(ctx context.Context, event port.AuditEvent) error {
	if _, err := m.col.InsertOne(ctx, newDocument(m.newID(), event)); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

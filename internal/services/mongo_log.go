package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	deliveriesCollection = "notification_deliveries"
	auditCollection      = "admin_audit"
	maxLogPage           = 200
)

// AuditEntry is one admin action.
type AuditEntry struct {
	ActorID   string                 `bson:"actor_id" json:"actor_id"`
	Action    string                 `bson:"action" json:"action"`
	TargetID  string                 `bson:"target_id" json:"target_id"`
	Details   map[string]interface{} `bson:"details,omitempty" json:"details,omitempty"`
	Timestamp time.Time              `bson:"timestamp" json:"timestamp"`
}

// MongoLog keeps the notification delivery log and the admin audit trail.
type MongoLog struct {
	db *mongo.Database
}

func NewMongoLog(db *mongo.Database) *MongoLog {
	return &MongoLog{db: db}
}

// EnsureIndexes is called on startup after Mongo has connected.
func (l *MongoLog) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		deliveriesCollection: {
			{
				Keys:    bson.D{{Key: "timestamp", Value: -1}},
				Options: options.Index().SetName("idx_timestamp"),
			},
			{
				Keys:    bson.D{{Key: "recipient_id", Value: 1}, {Key: "timestamp", Value: -1}},
				Options: options.Index().SetName("idx_recipient_timestamp"),
			},
		},
		auditCollection: {
			{
				Keys:    bson.D{{Key: "target_id", Value: 1}, {Key: "timestamp", Value: -1}},
				Options: options.Index().SetName("idx_target_timestamp"),
			},
		},
	}
	for collection, idx := range indexes {
		if _, err := l.db.Collection(collection).Indexes().CreateMany(ctx, idx); err != nil {
			return err
		}
	}
	return nil
}

func (l *MongoLog) RecordDelivery(ctx context.Context, d Delivery) error {
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}
	_, err := l.db.Collection(deliveriesCollection).InsertOne(ctx, d)
	return err
}

func (l *MongoLog) RecordAdminAction(ctx context.Context, e AuditEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	_, err := l.db.Collection(auditCollection).InsertOne(ctx, e)
	return err
}

// RecentDeliveries returns the latest delivery attempts, newest first.
func (l *MongoLog) RecentDeliveries(ctx context.Context, recipientID string, limit int64) ([]Delivery, error) {
	if limit <= 0 || limit > maxLogPage {
		limit = 50
	}
	filter := bson.M{}
	if recipientID != "" {
		filter["recipient_id"] = recipientID
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(limit)

	cur, err := l.db.Collection(deliveriesCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []Delivery{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

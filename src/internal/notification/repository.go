package notification

import (
	"context"
	"errors"
	"teamhub-realtime-svc/src/clients"
	"teamhub-realtime-svc/src/internal/models"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	Create(ctx context.Context, n *Notification) (*Notification, error)
	FindByActionHash(ctx context.Context, userID, actionHash string) (*Notification, error)
	Update(ctx context.Context, id primitive.ObjectID, update bson.M) (*Notification, error)
	List(ctx context.Context, userID string, limit, skip int) ([]*Notification, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	Count(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id primitive.ObjectID, userID string) (*Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	SoftDelete(ctx context.Context, id primitive.ObjectID, userID string) (*Notification, error)
	SoftDeleteAll(ctx context.Context, userID string) (int64, error)
	EnsureIndexes(ctx context.Context) error
}

type repository struct {
	collection *mongo.Collection
}

func NewRepository(db *clients.MongoDB, collectionName string) Repository {
	collection := db.Database.Collection(collectionName)
	return &repository{collection: collection}
}

// EnsureIndexes creates the compound unique index that backs duplicate
// prevention: concurrent inserts for the same (user, action) collapse at the
// storage layer rather than racing in application code.
func (r *repository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "action_hash", Value: 1},
				{Key: "is_deleted", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "is_deleted", Value: 1},
				{Key: "created_at", Value: -1},
			},
		},
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "is_read", Value: 1},
				{Key: "is_deleted", Value: 1},
			},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		logrus.WithError(err).Error("Failed to create notification indexes")
		return err
	}
	return nil
}

func (r *repository) Create(ctx context.Context, n *Notification) (*Notification, error) {
	now := time.Now()
	n.CreatedAt = now
	n.UpdatedAt = now
	if n.OccurrenceCount == 0 {
		n.OccurrenceCount = 1
	}
	if n.LastOccurrence.IsZero() {
		n.LastOccurrence = now
	}
	if n.Severity == "" {
		n.Severity = SeverityInfo
	}

	result, err := r.collection.InsertOne(ctx, n)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, models.ErrDuplicateRecord
		}
		logrus.WithError(err).WithField("user_id", n.UserID).Error("Failed to insert notification")
		return nil, models.ErrDatabaseInsert
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		n.ID = oid
	}
	return n, nil
}

func (r *repository) FindByActionHash(ctx context.Context, userID, actionHash string) (*Notification, error) {
	filter := bson.M{
		"user_id":     userID,
		"action_hash": actionHash,
		"is_deleted":  false,
	}

	var n Notification
	err := r.collection.FindOne(ctx, filter).Decode(&n)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil // Not an error, just not found
		}
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id":     userID,
			"action_hash": actionHash,
		}).Error("Failed to find notification by action hash")
		return nil, models.ErrDatabaseQuery
	}

	return &n, nil
}

func (r *repository) Update(ctx context.Context, id primitive.ObjectID, update bson.M) (*Notification, error) {
	if set, ok := update["$set"].(bson.M); ok {
		set["updated_at"] = time.Now()
	} else {
		update["$set"] = bson.M{"updated_at": time.Now()}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var n Notification
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&n)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotificationMissing
		}
		logrus.WithError(err).WithField("notification_id", id.Hex()).Error("Failed to update notification")
		return nil, models.ErrDatabaseUpdate
	}

	return &n, nil
}

func (r *repository) List(ctx context.Context, userID string, limit, skip int) ([]*Notification, error) {
	filter := bson.M{
		"user_id":    userID,
		"is_deleted": false,
	}

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(int64(skip)).
		SetSort(bson.D{
			{Key: "last_occurrence", Value: -1},
			{Key: "created_at", Value: -1},
		})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to find notifications")
		return nil, models.ErrDatabaseQuery
	}
	defer cursor.Close(ctx)

	var notifications []*Notification
	for cursor.Next(ctx) {
		var n Notification
		if err := cursor.Decode(&n); err != nil {
			logrus.WithError(err).Error("Failed to decode notification")
			continue
		}
		notifications = append(notifications, &n)
	}

	if err := cursor.Err(); err != nil {
		logrus.WithError(err).Error("Cursor error")
		return nil, models.ErrDatabaseQuery
	}

	return notifications, nil
}

func (r *repository) UnreadCount(ctx context.Context, userID string) (int64, error) {
	filter := bson.M{
		"user_id":    userID,
		"is_read":    false,
		"is_deleted": false,
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to count unread notifications")
		return 0, models.ErrDatabaseQuery
	}
	return count, nil
}

func (r *repository) Count(ctx context.Context, userID string) (int64, error) {
	filter := bson.M{
		"user_id":    userID,
		"is_deleted": false,
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to count notifications")
		return 0, models.ErrDatabaseQuery
	}
	return count, nil
}

func (r *repository) MarkRead(ctx context.Context, id primitive.ObjectID, userID string) (*Notification, error) {
	filter := bson.M{"_id": id, "user_id": userID, "is_deleted": false}
	update := bson.M{"$set": bson.M{"is_read": true, "updated_at": time.Now()}}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var n Notification
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&n)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotificationMissing
		}
		logrus.WithError(err).WithField("notification_id", id.Hex()).Error("Failed to mark notification as read")
		return nil, models.ErrDatabaseUpdate
	}

	return &n, nil
}

func (r *repository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	filter := bson.M{"user_id": userID, "is_deleted": false}
	update := bson.M{"$set": bson.M{"is_read": true, "updated_at": time.Now()}}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to mark all notifications as read")
		return 0, models.ErrDatabaseUpdate
	}
	return result.ModifiedCount, nil
}

func (r *repository) SoftDelete(ctx context.Context, id primitive.ObjectID, userID string) (*Notification, error) {
	filter := bson.M{"_id": id, "user_id": userID}
	update := bson.M{"$set": bson.M{"is_deleted": true, "updated_at": time.Now()}}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var n Notification
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&n)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotificationMissing
		}
		logrus.WithError(err).WithField("notification_id", id.Hex()).Error("Failed to delete notification")
		return nil, models.ErrDatabaseUpdate
	}

	return &n, nil
}

func (r *repository) SoftDeleteAll(ctx context.Context, userID string) (int64, error) {
	filter := bson.M{"user_id": userID}
	update := bson.M{"$set": bson.M{"is_deleted": true, "updated_at": time.Now()}}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to delete all notifications")
		return 0, models.ErrDatabaseUpdate
	}
	return result.ModifiedCount, nil
}

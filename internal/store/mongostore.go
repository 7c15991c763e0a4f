// internal/store/mongostore.go
package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store on a MongoDB database handle.
type MongoStore struct {
	db *mongo.Database
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

// EnsureIndexes creates the indexes the portal queries rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	appIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "applicantId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "serviceType", Value: 1}, {Key: "createdAt", Value: -1}}},
	}
	if _, err := s.db.Collection(CollectionApplications).Indexes().CreateMany(ctx, appIdx); err != nil {
		return err
	}

	auditIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "actorId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "action", Value: 1}, {Key: "createdAt", Value: -1}}},
	}
	if _, err := s.db.Collection(CollectionAuditLogs).Indexes().CreateMany(ctx, auditIdx); err != nil {
		return err
	}

	notifIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
	}
	_, err := s.db.Collection(CollectionNotifications).Indexes().CreateMany(ctx, notifIdx)
	return err
}

func (s *MongoStore) Get(ctx context.Context, collection, id string, out interface{}) error {
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

func (s *MongoStore) Create(ctx context.Context, collection string, doc interface{}) error {
	_, err := s.db.Collection(collection).InsertOne(ctx, doc)
	return err
}

func (s *MongoStore) UpdateFields(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	set := bson.M{"updatedAt": time.Now().UTC()}
	for k, v := range fields {
		set[k] = v
	}

	res, err := s.db.Collection(collection).UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) AppendToArray(ctx context.Context, collection, id, field string, entry interface{}) error {
	return s.UpdateAndAppend(ctx, collection, id, nil, nil, field, entry)
}

// UpdateAndAppend issues a single update command carrying both $set and $push,
// so the scalar fields and the array append commit atomically per document.
// Guard fields become part of the update filter, which turns the call into a
// compare-and-swap: a concurrent writer that already moved the document makes
// the filter match nothing.
func (s *MongoStore) UpdateAndAppend(ctx context.Context, collection, id string, guard, fields map[string]interface{}, field string, entry interface{}) error {
	set := bson.M{"updatedAt": time.Now().UTC()}
	for k, v := range fields {
		set[k] = v
	}

	filter := bson.M{"_id": id}
	for k, v := range guard {
		filter[k] = v
	}
	update := bson.M{
		"$set":  set,
		"$push": bson.M{field: entry},
	}

	res, err := s.db.Collection(collection).UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if len(guard) == 0 {
			return ErrNotFound
		}
		n, err := s.db.Collection(collection).CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrStale
	}
	return nil
}

func (s *MongoStore) Find(ctx context.Context, collection string, q Query, out interface{}) error {
	q.Normalize()

	filter := bson.M{}
	for k, v := range q.Filters {
		filter[k] = v
	}

	if q.Since != nil || q.Until != nil {
		rng := bson.M{}
		if q.Since != nil {
			rng["$gte"] = q.Since.UTC()
		}
		if q.Until != nil {
			rng["$lte"] = q.Until.UTC()
		}
		filter["createdAt"] = rng
	}

	if q.Cursor != "" {
		t, id, err := DecodeCursor(q.Cursor)
		if err != nil {
			return err
		}
		filter["$or"] = bson.A{
			bson.M{"createdAt": bson.M{"$lt": t}},
			bson.M{"createdAt": t, "_id": bson.M{"$lt": id}},
		}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(q.Limit + 1)

	cur, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	return cur.All(ctx, out)
}

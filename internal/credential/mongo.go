package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoKV persists session keys in a MongoDB collection, one document per key.
type MongoKV struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     apt.Logger
	url        string
	dbName     string
}

type kvDocument struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func NewMongoKV(url, dbName string, logger apt.Logger) *MongoKV {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	if url == "" {
		url = "mongodb://localhost:27017"
	}
	if dbName == "" {
		dbName = "cafesync"
	}
	return &MongoKV{
		logger: logger,
		url:    url,
		dbName: dbName,
	}
}

func (r *MongoKV) Start(ctx context.Context) error {
	clientOptions := options.Client().ApplyURI(r.url).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("cannot connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("cannot ping MongoDB: %w", err)
	}

	r.client = client
	r.collection = client.Database(r.dbName).Collection("credentials")

	r.logger.Infof("Connected to MongoDB credential store, database: %s", r.dbName)
	return nil
}

func (r *MongoKV) Stop(ctx context.Context) error {
	if r.client != nil {
		if err := r.client.Disconnect(ctx); err != nil {
			return fmt.Errorf("cannot disconnect from MongoDB: %w", err)
		}
		r.logger.Info("Disconnected from MongoDB credential store")
	}
	return nil
}

var errMongoNotStarted = errors.New("mongo credential store not started")

func (r *MongoKV) Get(ctx context.Context, key string) (string, bool, error) {
	if r.collection == nil {
		return "", false, errMongoNotStarted
	}
	var doc kvDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("cannot get %s: %w", key, err)
	}
	return doc.Value, true, nil
}

func (r *MongoKV) Set(ctx context.Context, key, value string) error {
	if r.collection == nil {
		return errMongoNotStarted
	}
	doc := kvDocument{Key: key, Value: value, UpdatedAt: time.Now()}
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("cannot set %s: %w", key, err)
	}
	return nil
}

func (r *MongoKV) Delete(ctx context.Context, keys ...string) error {
	if r.collection == nil {
		return errMongoNotStarted
	}
	if len(keys) == 0 {
		return nil
	}
	if _, err := r.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": keys}}); err != nil {
		return fmt.Errorf("cannot delete session keys: %w", err)
	}
	return nil
}

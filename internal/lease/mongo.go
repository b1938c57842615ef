package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// LeaseCollection is the collection holding one document per lock key.
const LeaseCollection = "leases"

// leaseDocument is the stored shape. State lives on the same document so the
// holder check and the write are one atomic update.
type leaseDocument struct {
	Key        string    `bson:"_id"`
	HolderID   string    `bson:"holder_id"`
	AcquiredAt time.Time `bson:"acquired_at"`
	ExpiresAt  time.Time `bson:"expires_at"`
	State      []byte    `bson:"state,omitempty"`
}

// MongoStore keeps leases in MongoDB for deployments spread over several hosts.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	clock      clockwork.Clock
	owned      bool
}

// ConnectMongo dials uri, verifies the connection and returns a store that
// disconnects on Close.
func ConnectMongo(ctx context.Context, uri, database string, clock clockwork.Clock) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(10).
		SetMinPoolSize(1).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(10 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %w", ErrBackendUnavailable, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: ping: %w", ErrBackendUnavailable, err)
	}

	store := NewMongoStore(client.Database(database), clock)
	store.client = client
	store.owned = true
	return store, nil
}

// NewMongoStore creates a store over an existing database handle.
func NewMongoStore(db *mongo.Database, clock clockwork.Clock) *MongoStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MongoStore{
		client:     db.Client(),
		collection: db.Collection(LeaseCollection),
		clock:      clock,
	}
}

// TryAcquire implements Store. The holder's own lease is extended in place;
// otherwise an upsert filtered on expiry either takes the expired document or
// inserts a new one. A duplicate key on insert means someone else holds it.
func (s *MongoStore) TryAcquire(ctx context.Context, key, holderID string, ttl time.Duration) (bool, error) {
	if err := validateTTL(ttl); err != nil {
		return false, err
	}

	now := s.clock.Now().UTC()

	own, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": key, "holder_id": holderID},
		bson.M{"$set": bson.M{"expires_at": now.Add(ttl)}},
	)
	if err != nil {
		return false, backendErr("acquire", key, err)
	}
	if own.MatchedCount == 1 {
		return true, nil
	}

	_, err = s.collection.UpdateOne(ctx,
		bson.M{"_id": key, "expires_at": bson.M{"$lte": now}},
		bson.M{"$set": bson.M{
			"holder_id":   holderID,
			"acquired_at": now,
			"expires_at":  now.Add(ttl),
		}},
		options.Update().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, backendErr("acquire", key, err)
	}
	return true, nil
}

// Renew implements Store.
func (s *MongoStore) Renew(ctx context.Context, key, holderID string, ttl time.Duration) (bool, error) {
	if err := validateTTL(ttl); err != nil {
		return false, err
	}

	now := s.clock.Now().UTC()
	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": key, "holder_id": holderID, "expires_at": bson.M{"$gt": now}},
		bson.M{"$set": bson.M{"expires_at": now.Add(ttl)}},
	)
	if err != nil {
		return false, backendErr("renew", key, err)
	}
	return result.MatchedCount == 1, nil
}

// Release implements Store. The document is expired rather than deleted so the
// saved state survives for the next holder.
func (s *MongoStore) Release(ctx context.Context, key, holderID string) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": key, "holder_id": holderID},
		bson.M{"$set": bson.M{"expires_at": time.Unix(0, 0).UTC()}},
	)
	if err != nil {
		return backendErr("release", key, err)
	}
	return nil
}

// Get implements Store.
func (s *MongoStore) Get(ctx context.Context, key string) (*Record, error) {
	var doc leaseDocument
	err := s.collection.FindOne(ctx,
		bson.M{"_id": key, "expires_at": bson.M{"$gt": s.clock.Now().UTC()}},
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, backendErr("get", key, err)
	}

	return &Record{
		Key:        doc.Key,
		HolderID:   doc.HolderID,
		AcquiredAt: doc.AcquiredAt.UTC(),
		ExpiresAt:  doc.ExpiresAt.UTC(),
	}, nil
}

// SaveState implements Store.
func (s *MongoStore) SaveState(ctx context.Context, key, holderID string, data []byte) error {
	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": key, "holder_id": holderID, "expires_at": bson.M{"$gt": s.clock.Now().UTC()}},
		bson.M{"$set": bson.M{"state": data}},
	)
	if err != nil {
		return backendErr("save state", key, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s not held by %s", ErrLeaseLost, key, holderID)
	}
	return nil
}

// LoadState implements Store.
func (s *MongoStore) LoadState(ctx context.Context, key string) ([]byte, error) {
	var doc leaseDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, backendErr("load state", key, err)
	}
	if len(doc.State) == 0 {
		return nil, ErrNotFound
	}
	return doc.State, nil
}

// Close disconnects the client when the store created it.
func (s *MongoStore) Close() error {
	if !s.owned {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

package store

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo implements Store on top of a MongoDB database. Document ids are
// UUID strings assigned on insert so they stay opaque to the driver.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// ConnectMongo dials MongoDB, pings it, and returns a ready Store.
func ConnectMongo(ctx context.Context, mongoURI string) (*Mongo, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(mongoURI)
	clientOptions.SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, err
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	log.Println("Connected to MongoDB")
	return &Mongo{
		client: client,
		db:     client.Database(databaseName(mongoURI)),
	}, nil
}

// databaseName extracts the database from the URI path, defaulting to
// "astrochat" (URI format: mongodb://host:port/dbname?opts).
func databaseName(mongoURI string) string {
	parts := strings.Split(mongoURI, "/")
	if len(parts) > 3 {
		name := strings.Split(parts[len(parts)-1], "?")[0]
		if name != "" {
			return name
		}
	}
	return "astrochat"
}

// Disconnect closes the underlying client.
func (s *Mongo) Disconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the services rely on. The unique index on
// friend_code is what makes code generation safe under concurrent
// registrations: the generation loop is best-effort, the store is the
// authority.
func (s *Mongo) EnsureIndexes(ctx context.Context) error {
	users := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("idx_users_email")},
		{Keys: bson.D{{Key: "friend_code", Value: 1}}, Options: options.Index().SetUnique(true).SetName("idx_users_friend_code")},
	}
	tokens := []mongo.IndexModel{
		{Keys: bson.D{{Key: "token", Value: 1}}, Options: options.Index().SetUnique(true).SetName("idx_tokens_token")},
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetName("idx_tokens_user")},
	}
	messages := []mongo.IndexModel{
		{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "created_at", Value: 1}}, Options: options.Index().SetName("idx_messages_participants_created")},
		{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "sender_id", Value: 1}, {Key: "read", Value: 1}}, Options: options.Index().SetName("idx_messages_unread")},
	}

	for col, indexes := range map[string][]mongo.IndexModel{
		ColUsers:         users,
		ColSessionTokens: tokens,
		ColMessages:      messages,
	} {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, indexes); err != nil {
			return err
		}
	}
	return nil
}

func (s *Mongo) FindOne(ctx context.Context, collection string, filter Filter, dest any) error {
	err := s.db.Collection(collection).FindOne(ctx, bson.M(filter)).Decode(dest)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

func (s *Mongo) FindByID(ctx context.Context, collection, id string, dest any) error {
	return s.FindOne(ctx, collection, Filter{"_id": id}, dest)
}

func (s *Mongo) FindMany(ctx context.Context, collection string, filter Filter, dest any) error {
	cur, err := s.db.Collection(collection).Find(ctx, bson.M(filter))
	if err != nil {
		return err
	}
	return cur.All(ctx, dest)
}

func (s *Mongo) Insert(ctx context.Context, collection string, doc any) (string, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return "", err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	id := uuid.NewString()
	m["_id"] = id
	if _, err := s.db.Collection(collection).InsertOne(ctx, m); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Mongo) UpdateFields(ctx context.Context, collection, id string, fields Filter) error {
	res, err := s.db.Collection(collection).UpdateByID(ctx, id, bson.M{"$set": bson.M(fields)})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Mongo) AtomicBatch(ctx context.Context, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}

	session, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		for _, op := range ops {
			col := s.db.Collection(op.Collection)
			switch op.Type {
			case OpUpdate:
				res, err := col.UpdateByID(sc, op.ID, bson.M{"$set": bson.M(op.Fields)})
				if err != nil {
					return nil, err
				}
				if res.MatchedCount == 0 {
					return nil, ErrNotFound
				}
			case OpDelete:
				if _, err := col.DeleteOne(sc, bson.M{"_id": op.ID}); err != nil {
					return nil, err
				}
			}
		}
		return nil, nil
	})
	return err
}

// Now truncates to millisecond precision so timestamps survive a BSON
// round trip unchanged.
func (s *Mongo) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

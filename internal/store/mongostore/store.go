package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/farellandr/gatherly/internal/store"
)

const (
	UsersCollection  = "users"
	EventsCollection = "events"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	users  *userRepository
	events *eventRepository
}

// Connect dials the cluster, pings it and makes sure the indexes exist.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := New(client, client.Database(database))
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}

	log.Info().Str("database", database).Msg("Connected to MongoDB")
	return s, nil
}

func New(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{
		client: client,
		db:     db,
		users:  &userRepository{coll: db.Collection(UsersCollection)},
		events: &eventRepository{coll: db.Collection(EventsCollection)},
	}
}

func (s *Store) Users() store.UserRepository   { return s.users }
func (s *Store) Events() store.EventRepository { return s.events }

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(UsersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}

	_, err = s.db.Collection(EventsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "organizerId", Value: 1}}},
		{Keys: bson.D{{Key: "draft", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create event indexes: %w", err)
	}
	return nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return store.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return store.ErrDuplicate
	default:
		return err
	}
}

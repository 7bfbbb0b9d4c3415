// Package gormstore keeps the user and event documents in a relational database,
// one row per document with the embedded lists serialized as JSON.
package gormstore

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/farellandr/gatherly/internal/models"
	"github.com/farellandr/gatherly/internal/store"
)

type Store struct {
	db     *gorm.DB
	users  *userRepository
	events *eventRepository
}

func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&models.User{}, &models.Event{}); err != nil {
		return nil, err
	}

	return &Store{
		db:     db,
		users:  &userRepository{db: db},
		events: &eventRepository{db: db},
	}, nil
}

func (s *Store) Users() store.UserRepository   { return s.users }
func (s *Store) Events() store.EventRepository { return s.events }

func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey),
		strings.Contains(err.Error(), "UNIQUE constraint failed"),
		strings.Contains(err.Error(), "duplicate key"):
		return store.ErrDuplicate
	default:
		return err
	}
}

package gormstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/farellandr/gatherly/internal/models"
	"github.com/farellandr/gatherly/internal/store"
	"github.com/farellandr/gatherly/internal/store/storetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "gatherly.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestRepositories(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return openTestStore(t)
	})
}

func TestCreateUserAssignsID(t *testing.T) {
	s := openTestStore(t)
	user := &models.User{Name: "Ana", Username: "ana", Email: "ana@example.com", Password: "hash"}

	require.NoError(t, s.Users().Create(context.Background(), user))
	assert.NotEmpty(t, user.ID)
}

func TestUpdateProfileWithoutChangesChecksUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user := &models.User{Name: "Ana", Username: "ana", Email: "ana@example.com", Password: "hash"}
	require.NoError(t, s.Users().Create(ctx, user))

	assert.NoError(t, s.Users().UpdateProfile(ctx, user.ID, store.ProfileUpdate{}))
	assert.ErrorIs(t, s.Users().UpdateProfile(ctx, "missing", store.ProfileUpdate{}), store.ErrNotFound)
}

func TestSQLiteUsesSingleConnection(t *testing.T) {
	s := openTestStore(t)
	sqlDB, err := s.DB().DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil))
	assert.ErrorIs(t, translate(gorm.ErrRecordNotFound), store.ErrNotFound)
	assert.ErrorIs(t, translate(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)), store.ErrDuplicate)
	assert.ErrorIs(t, translate(errors.New("UNIQUE constraint failed: users.email")), store.ErrDuplicate)

	other := errors.New("disk I/O error")
	assert.Equal(t, other, translate(other))
}

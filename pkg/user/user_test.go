package user_test

import (
	"context"
	"testing"

	"github.com/Dou2020/tasks-manager/pkg/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayName(t *testing.T) {
	u := &user.User{ID: "u1", Name: "Ana García", Username: "ana"}
	assert.Equal(t, "Ana García", u.DisplayName())

	u.Name = ""
	assert.Equal(t, "ana", u.DisplayName())
}

func TestMemoryStore(t *testing.T) {
	store := user.NewMemoryStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "u1")
	assert.ErrorIs(t, err, user.ErrNotFound)

	store.Add(&user.User{ID: "u1", Username: "ana"})
	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ana", got.Username)

	// The store hands out copies, not its internal record.
	got.Username = "mutated"
	again, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ana", again.Username)
}

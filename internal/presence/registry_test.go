package presence

import (
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func newInternalTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func TestRegistryRegisterUnregister(t *testing.T) {
	reg := NewRegistry(newInternalTestLogger())
	connA := uuid.New()
	connB := uuid.New()

	reg.Register("u1", connA)
	reg.Register("u1", connB)
	assert.Equal(t, 2, reg.Count("u1"))
	assert.ElementsMatch(t, []uuid.UUID{connA, connB}, reg.ConnectionsOf("u1"))

	assert.False(t, reg.Unregister("u1", connA))
	assert.Equal(t, 1, reg.Count("u1"))

	// Unregistering the last connection removes the user entirely.
	assert.True(t, reg.Unregister("u1", connB))
	assert.Zero(t, reg.Count("u1"))
	assert.Empty(t, reg.Users())
	assert.Nil(t, reg.ConnectionsOf("u1"))
}

func TestRegistryUnregisterUnknownUser(t *testing.T) {
	reg := NewRegistry(newInternalTestLogger())
	assert.False(t, reg.Unregister("ghost", uuid.New()))
}

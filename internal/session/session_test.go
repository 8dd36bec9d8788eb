package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/tapgoose/internal/model"
	"github.com/verte-zerg/tapgoose/internal/store"
)

func openStore(t *testing.T, path string) *store.Store {
	t.Helper()
	st, err := store.Open(path)
	require.NoError(t, err)
	return st
}

func TestManagerStartsUnauthenticated(t *testing.T) {
	st := openStore(t, filepath.Join(t.TempDir(), "tapgoose.db"))
	t.Cleanup(func() { _ = st.Close() })

	m, err := NewManager(context.Background(), st)
	require.NoError(t, err)
	assert.False(t, m.IsAuthenticated())
	assert.Equal(t, model.Session{}, m.Get())
}

func TestManagerSessionSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tapgoose.db")
	ctx := context.Background()

	st := openStore(t, path)
	m, err := NewManager(ctx, st)
	require.NoError(t, err)
	require.NoError(t, m.SetAuth(ctx, "tok", "alice", true))
	assert.True(t, m.IsAuthenticated())
	require.NoError(t, st.Close())

	st = openStore(t, path)
	reloaded, err := NewManager(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, model.Session{Token: "tok", Username: "alice", IsAdmin: true}, reloaded.Get())

	require.NoError(t, reloaded.ClearAuth(ctx))
	require.NoError(t, st.Close())

	st = openStore(t, path)
	t.Cleanup(func() { _ = st.Close() })
	cleared, err := NewManager(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, model.Session{}, cleared.Get())
	assert.False(t, cleared.IsAuthenticated())
}

func TestClearAuthIsIdempotent(t *testing.T) {
	st := openStore(t, filepath.Join(t.TempDir(), "tapgoose.db"))
	t.Cleanup(func() { _ = st.Close() })
	ctx := context.Background()

	m, err := NewManager(ctx, st)
	require.NoError(t, err)
	require.NoError(t, m.ClearAuth(ctx))
	require.NoError(t, m.ClearAuth(ctx))
	assert.Equal(t, model.Session{}, m.Get())
}

func TestEmptyTokenIsUnauthenticated(t *testing.T) {
	st := openStore(t, filepath.Join(t.TempDir(), "tapgoose.db"))
	t.Cleanup(func() { _ = st.Close() })
	ctx := context.Background()

	m, err := NewManager(ctx, st)
	require.NoError(t, err)
	require.NoError(t, m.SetAuth(ctx, "", "ghost", true))
	assert.False(t, m.IsAuthenticated())
}

func TestSubscribeNotifiesOnChange(t *testing.T) {
	st := openStore(t, filepath.Join(t.TempDir(), "tapgoose.db"))
	t.Cleanup(func() { _ = st.Close() })
	ctx := context.Background()

	m, err := NewManager(ctx, st)
	require.NoError(t, err)

	var seen []model.Session
	unsubscribe := m.Subscribe(func(s model.Session) {
		seen = append(seen, s)
	})
	require.NoError(t, m.SetAuth(ctx, "tok", "bob", false))
	require.NoError(t, m.ClearAuth(ctx))
	unsubscribe()
	require.NoError(t, m.SetAuth(ctx, "tok2", "bob", false))

	require.Len(t, seen, 2)
	assert.Equal(t, "tok", seen[0].Token)
	assert.Equal(t, model.Session{}, seen[1])
}

type failingPersister struct {
	saveErr error
}

func (f *failingPersister) LoadSession(context.Context) (model.Session, error) {
	return model.Session{Token: "old", Username: "alice"}, nil
}

func (f *failingPersister) SaveSession(context.Context, model.Session) error {
	return f.saveErr
}

func TestClearAuthAppliesInMemoryWhenPersistFails(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	m, err := NewManager(ctx, &failingPersister{saveErr: boom})
	require.NoError(t, err)
	require.True(t, m.IsAuthenticated())

	err = m.ClearAuth(ctx)
	require.ErrorIs(t, err, boom)
	assert.False(t, m.IsAuthenticated())
}

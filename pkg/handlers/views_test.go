package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"questionforum/pkg/client"
	"questionforum/pkg/models"
	"questionforum/pkg/session"
)

func newTestRegistry(ttl time.Duration) (*ViewRegistry, *time.Time) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	reg := NewViewRegistry(ttl)
	reg.now = func() time.Time { return now }
	return reg, &now
}

func signedIn(name string) *session.Session {
	s := session.New("token-"+name, nil)
	s.Authenticate("token-"+name, models.User{ID: 1, Username: name})
	return s
}

func TestViewRegistryExpiresIdleViews(t *testing.T) {
	reg, now := newTestRegistry(30 * time.Minute)
	api := client.New("http://forum.invalid/api")

	idle := reg.Create(signedIn("alice"), api, 10, 5, zap.NewNop())
	busy := reg.Create(signedIn("bob"), api, 10, 5, zap.NewNop())
	require.Equal(t, 2, reg.Len())

	*now = now.Add(20 * time.Minute)
	_, ok := reg.Get(busy.ID)
	require.True(t, ok)

	*now = now.Add(20 * time.Minute)
	_, ok = reg.Get(idle.ID)
	assert.False(t, ok, "idle for 40 minutes")
	got, ok := reg.Get(busy.ID)
	assert.True(t, ok, "used 20 minutes ago")
	assert.Same(t, busy, got)
	assert.Equal(t, 1, reg.Len())
}

func TestViewIsDroppedWhenSessionEnds(t *testing.T) {
	reg, _ := newTestRegistry(time.Hour)
	sess := signedIn("alice")
	v := reg.Create(sess, client.New("http://forum.invalid/api"), 10, 5, nil)

	sess.Invalidate()
	_, ok := reg.Get(v.ID)
	assert.False(t, ok)
	assert.Zero(t, reg.Len())
}

func TestViewKeepsThreadsAndDrafts(t *testing.T) {
	reg, _ := newTestRegistry(time.Hour)
	v := reg.Create(signedIn("alice"), client.New("http://forum.invalid/api"), 10, 5, zap.NewNop())

	first := v.Thread(7)
	assert.Same(t, first, v.Thread(7))
	assert.Equal(t, 7, first.ID())

	v.setDraft(7, "<p>half written</p>")
	assert.Equal(t, "<p>half written</p>", v.Draft(7))

	v.dropThread(7)
	assert.Empty(t, v.Draft(7))
	assert.NotSame(t, first, v.Thread(7))
}

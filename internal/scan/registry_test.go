package scan

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-scan/internal/database/mock"
	"github.com/kozaktomas/face-scan/internal/logging"
)

func newTestRegistry(t *testing.T, ttl time.Duration) (*Registry, *atomic.Int32) {
	t.Helper()
	var created atomic.Int32
	factory := func(sessionID, userID string) *Controller {
		created.Add(1)
		return NewController(
			newFakeCapturer([]byte{0x01}, []byte{0x02}),
			newFakeStorage(),
			&fakeAnalyzer{landmarks: map[string]float64{"jaw_width": 120}},
			mock.NewMockScanResultStore(),
			Options{UserID: userID},
		)
	}
	r := NewRegistry(factory, ttl, logging.NewTestLogger())
	t.Cleanup(r.Stop)
	return r, &created
}

func TestRegistry_GetReusesController(t *testing.T) {
	r, created := newTestRegistry(t, time.Minute)

	a := r.Get("session-a", "alice")
	again := r.Get("session-a", "alice")
	b := r.Get("session-b", "bob")

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)
	assert.Equal(t, int32(2), created.Load())
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, "bob", b.UserID())
}

func TestRegistry_RemoveClosesController(t *testing.T) {
	r, _ := newTestRegistry(t, time.Minute)
	ctrl := r.Get("session", "alice")

	assert.True(t, r.Remove("session"))
	assert.False(t, r.Remove("session"))

	_, ok := r.Lookup("session")
	assert.False(t, ok)
	assert.Eventually(t, func() bool {
		return ctrl.Start(context.Background()) == ErrClosed
	}, time.Second, 10*time.Millisecond)
}

func TestRegistry_IdleControllersExpire(t *testing.T) {
	r, _ := newTestRegistry(t, 50*time.Millisecond)
	ctrl := r.Get("session", "alice")
	require.NotNil(t, ctrl)

	assert.Eventually(t, func() bool {
		_, ok := r.Lookup("session")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return ctrl.Start(context.Background()) == ErrClosed
	}, time.Second, 10*time.Millisecond)
}

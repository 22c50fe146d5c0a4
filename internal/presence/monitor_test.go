package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devastator99/socratic-gateway/internal/broker"
	"github.com/devastator99/socratic-gateway/pkg/types"
)

func newTestMonitor(t *testing.T) (*Monitor, *broker.Broker, *fakeClock) {
	t.Helper()
	b := broker.New(10, nil)
	m := New(2*time.Minute, 30*time.Second, b, nil)
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	m.now = clock.Now
	return m, b, clock
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestHeartbeat_MarksOnline(t *testing.T) {
	m, _, _ := newTestMonitor(t)

	assert.False(t, m.IsOnline("walletA"))
	m.Heartbeat("walletA")
	assert.True(t, m.IsOnline("walletA"))

	last, ok := m.LastSeen("walletA")
	require.True(t, ok)
	assert.False(t, last.IsZero())
}

func TestIsOnline_ExpiresAfterThreshold(t *testing.T) {
	m, _, clock := newTestMonitor(t)

	m.Heartbeat("walletA")
	clock.Advance(2 * time.Minute)
	assert.True(t, m.IsOnline("walletA"), "exactly at threshold is still online")

	clock.Advance(time.Second)
	assert.False(t, m.IsOnline("walletA"))
}

func TestOnline_ListsOnlyLiveWallets(t *testing.T) {
	m, _, clock := newTestMonitor(t)

	m.Heartbeat("stale")
	clock.Advance(3 * time.Minute)
	m.Heartbeat("fresh")

	online := m.Online()
	assert.Equal(t, []string{"fresh"}, online)
}

func TestSweep_EvictsAndAnnouncesOnce(t *testing.T) {
	m, b, clock := newTestMonitor(t)

	var got []types.Envelope
	b.Subscribe(types.StatusChannel, func(e types.Envelope) { got = append(got, e) })

	m.Heartbeat("walletA")
	lastSeen, _ := m.LastSeen("walletA")

	clock.Advance(3 * time.Minute)
	m.sweep()
	m.sweep() // second sweep must not re-announce

	require.Len(t, got, 1)
	assert.Equal(t, types.EnvelopeStatus, got[0].Kind)
	assert.Equal(t, "walletA", got[0].From)
	assert.Equal(t, lastSeen, got[0].Timestamp)

	_, tracked := m.LastSeen("walletA")
	assert.False(t, tracked)
}

func TestSweep_KeepsLiveActors(t *testing.T) {
	m, b, clock := newTestMonitor(t)

	var announcements int
	b.Subscribe(types.StatusChannel, func(types.Envelope) { announcements++ })

	m.Heartbeat("walletA")
	clock.Advance(time.Minute)
	m.sweep()

	assert.True(t, m.IsOnline("walletA"))
	assert.Zero(t, announcements)
}

func TestForget_DropsSilently(t *testing.T) {
	m, b, _ := newTestMonitor(t)

	var announcements int
	b.Subscribe(types.StatusChannel, func(types.Envelope) { announcements++ })

	m.Heartbeat("walletA")
	m.Forget("walletA")

	assert.False(t, m.IsOnline("walletA"))
	assert.Zero(t, announcements)
}

func TestHeartbeat_RefreshKeepsActorThroughSweeps(t *testing.T) {
	m, _, clock := newTestMonitor(t)

	m.Heartbeat("walletA")
	for i := 0; i < 10; i++ {
		clock.Advance(time.Minute)
		m.Heartbeat("walletA")
		m.sweep()
	}

	assert.True(t, m.IsOnline("walletA"))
}

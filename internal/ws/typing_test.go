package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func typingRoom(t *testing.T, ttl time.Duration) (*Hub, *Client, *Client) {
	t.Helper()
	hub := NewHub()
	hub.typingTTL = ttl
	a := newTestClient(1, "alice")
	b := newTestClient(2, "bob")
	hub.Register(a)
	hub.Register(b)
	hub.JoinRoom(a, 1, false)
	hub.JoinRoom(b, 1, false)
	drainEvents(a)
	drainEvents(b)
	return hub, a, b
}

func TestTypingStartBroadcastsOnce(t *testing.T) {
	hub, a, b := typingRoom(t, time.Minute)

	require.NoError(t, hub.SetTyping(a, 1, true))
	require.NoError(t, hub.SetTyping(a, 1, true))
	require.NoError(t, hub.SetTyping(a, 1, true))

	evs := drainEvents(b)
	require.Equal(t, 1, countEvents(evs, EvTypingUpdate))
	var payload TypingUpdatePayload
	require.NoError(t, json.Unmarshal(evs[0].Data, &payload))
	assert.True(t, payload.IsTyping)
	assert.Equal(t, "alice", payload.UserName)

	// The typer never hears their own indicator.
	assert.Zero(t, countEvents(drainEvents(a), EvTypingUpdate))
}

func TestTypingExplicitStop(t *testing.T) {
	hub, a, b := typingRoom(t, time.Minute)

	require.NoError(t, hub.SetTyping(a, 1, true))
	require.NoError(t, hub.SetTyping(a, 1, false))

	evs := drainEvents(b)
	require.Equal(t, 2, countEvents(evs, EvTypingUpdate))
	var payload TypingUpdatePayload
	require.NoError(t, json.Unmarshal(evs[1].Data, &payload))
	assert.False(t, payload.IsTyping)

	// Timer was cancelled: no expiry broadcast follows.
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, countEvents(drainEvents(b), EvTypingUpdate))
}

func TestTypingStopWhileIdleIsSilent(t *testing.T) {
	hub, a, b := typingRoom(t, time.Minute)
	require.NoError(t, hub.SetTyping(a, 1, false))
	assert.Zero(t, countEvents(drainEvents(b), EvTypingUpdate))
}

func TestTypingExpiresExactlyOnce(t *testing.T) {
	hub, a, b := typingRoom(t, 30*time.Millisecond)

	require.NoError(t, hub.SetTyping(a, 1, true))
	drainEvents(b)

	env := waitForEvent(t, b, EvTypingUpdate, time.Second)
	var payload TypingUpdatePayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.False(t, payload.IsTyping)

	time.Sleep(3 * hub.typingTTL)
	assert.Zero(t, countEvents(drainEvents(b), EvTypingUpdate))

	// Expired entry is gone: an explicit stop now is a no-op.
	require.NoError(t, hub.SetTyping(a, 1, false))
	assert.Zero(t, countEvents(drainEvents(b), EvTypingUpdate))
}

func TestTypingRefreshDefersExpiry(t *testing.T) {
	hub, a, b := typingRoom(t, 60*time.Millisecond)

	require.NoError(t, hub.SetTyping(a, 1, true))
	drainEvents(b)

	time.Sleep(35 * time.Millisecond)
	require.NoError(t, hub.SetTyping(a, 1, true))
	time.Sleep(35 * time.Millisecond)
	// Original deadline passed but the refresh re-armed the timer.
	assert.Zero(t, countEvents(drainEvents(b), EvTypingUpdate))

	waitForEvent(t, b, EvTypingUpdate, time.Second)
}

func TestTypingRefreshInvalidatesFiredTimer(t *testing.T) {
	hub, a, b := typingRoom(t, time.Hour)

	require.NoError(t, hub.SetTyping(a, 1, true))
	drainEvents(b)

	hub.mu.Lock()
	old := hub.rooms[1].typing[a.user.ID]
	hub.mu.Unlock()
	require.NotNil(t, old)

	require.NoError(t, hub.SetTyping(a, 1, true))

	// A timer that fired just before the refresh runs its callback only
	// after the lock frees. The replaced entry must make it a no-op.
	hub.expireTyping(1, old)

	assert.Zero(t, countEvents(drainEvents(b), EvTypingUpdate))
	hub.mu.RLock()
	assert.NotNil(t, hub.rooms[1].typing[a.user.ID])
	hub.mu.RUnlock()

	// The indicator is still live and stops normally.
	require.NoError(t, hub.SetTyping(a, 1, false))
	assert.Equal(t, 1, countEvents(drainEvents(b), EvTypingUpdate))
}

func TestTypingClearedOnDisconnect(t *testing.T) {
	hub, a, b := typingRoom(t, time.Minute)

	require.NoError(t, hub.SetTyping(a, 1, true))
	drainEvents(b)

	hub.Unregister(a)
	evs := drainEvents(b)
	require.Equal(t, 1, countEvents(evs, EvTypingUpdate))
	var stop TypingUpdatePayload
	for _, ev := range evs {
		if ev.Event == EvTypingUpdate {
			require.NoError(t, json.Unmarshal(ev.Data, &stop))
		}
	}
	assert.False(t, stop.IsTyping)
}

func TestTypingSurvivesOtherDeviceDisconnect(t *testing.T) {
	hub, a, b := typingRoom(t, time.Minute)
	dev2 := newTestClient(1, "alice")
	hub.Register(dev2)
	hub.JoinRoom(dev2, 1, false)
	drainEvents(b)

	require.NoError(t, hub.SetTyping(a, 1, true))
	drainEvents(b)

	// The non-typing device going away must not clear the indicator.
	hub.Unregister(dev2)
	assert.Zero(t, countEvents(drainEvents(b), EvTypingUpdate))

	hub.Unregister(a)
	assert.Equal(t, 1, countEvents(drainEvents(b), EvTypingUpdate))
}

func TestTypingRequiresMembership(t *testing.T) {
	hub, _, _ := typingRoom(t, time.Minute)
	outsider := newTestClient(3, "mallory")
	hub.Register(outsider)

	err := hub.SetTyping(outsider, 1, true)
	var ee *EventError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, CodeForbidden, ee.Code)
}

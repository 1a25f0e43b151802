package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForFrames(t *testing.T, conn *fakeConn, want int) []Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if frames := conn.Frames(); len(frames) >= want {
			return frames
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d frames, got %d", want, len(conn.Frames()))
	return nil
}

func TestNotifyUserDeliversToLiveSession(t *testing.T) {
	registry := NewRegistry()
	fanout := NewFanout(registry)

	s, conn := newTestSession()
	registry.Add(s)
	require.NoError(t, registry.Bind(s.ID, "u1"))
	go s.WritePump()

	fanout.NotifyUser("u1", "team:removed", map[string]interface{}{"teamId": "t1"})

	frames := waitForFrames(t, conn, 1)
	assert.Equal(t, "team:removed", frames[0].Event)
}

func TestNotifyUserDisconnectedIsNoOp(t *testing.T) {
	registry := NewRegistry()
	fanout := NewFanout(registry)

	assert.NotPanics(t, func() {
		fanout.NotifyUser("ghost", "team:removed", nil)
	})
	assert.False(t, fanout.IsUserConnected("ghost"))
}

func TestNotifyUserNoWriteAfterDisconnect(t *testing.T) {
	registry := NewRegistry()
	fanout := NewFanout(registry)

	s, conn := newTestSession()
	registry.Add(s)
	require.NoError(t, registry.Bind(s.ID, "u1"))
	registry.Remove(s.ID)
	s.Close()

	fanout.NotifyUser("u1", "team:removed", nil)

	assert.Empty(t, conn.Frames())
}

func TestPerUserDeliveryOrderPreserved(t *testing.T) {
	registry := NewRegistry()
	fanout := NewFanout(registry)

	s, conn := newTestSession()
	registry.Add(s)
	require.NoError(t, registry.Bind(s.ID, "u1"))
	go s.WritePump()

	events := []string{"first", "second", "third", "fourth"}
	for _, event := range events {
		fanout.NotifyUser("u1", event, nil)
	}

	frames := waitForFrames(t, conn, len(events))
	for i, event := range events {
		assert.Equal(t, event, frames[i].Event)
	}
}

func TestNotifyUsersPartialDelivery(t *testing.T) {
	registry := NewRegistry()
	fanout := NewFanout(registry)

	s, conn := newTestSession()
	registry.Add(s)
	require.NoError(t, registry.Bind(s.ID, "u1"))
	go s.WritePump()

	fanout.NotifyUsers([]string{"u1", "offline-user"}, "team:updated", nil)

	frames := waitForFrames(t, conn, 1)
	assert.Equal(t, "team:updated", frames[0].Event)
}

func TestDisconnectUser(t *testing.T) {
	registry := NewRegistry()
	fanout := NewFanout(registry)

	s, conn := newTestSession()
	registry.Add(s)
	require.NoError(t, registry.Bind(s.ID, "u1"))

	fanout.DisconnectUser("u1")

	assert.False(t, registry.IsUserConnected("u1"))
	assert.True(t, conn.Closed())
	assert.Equal(t, 0, registry.Stats().Total)

	// Idempotent for an already disconnected user.
	assert.NotPanics(t, func() { fanout.DisconnectUser("u1") })
}

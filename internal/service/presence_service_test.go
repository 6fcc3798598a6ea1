package service

import (
	"testing"
	"time"

	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceService_UnknownUserIsOffline(t *testing.T) {
	s := NewPresenceService(newFakeRealtime(false))
	st := s.GetUserStatus("nobody")
	assert.False(t, st.Online)
	assert.Nil(t, st.LastConnection)
	assert.False(t, s.IsUserOnline("nobody"))
}

func TestPresenceService_SyncRequests(t *testing.T) {
	rt := newFakeRealtime(true)
	s := NewPresenceService(rt)
	defer s.Close()

	assert.Len(t, rt.sentEvents(constant.EventRequestStatusSync), 1, "connected at construction")

	rt.setConnected(false)
	rt.connect()
	rt.connect()
	assert.Len(t, rt.sentEvents(constant.EventRequestStatusSync), 3, "once per connect")

	s.Close()
	rt.connect()
	assert.Len(t, rt.sentEvents(constant.EventRequestStatusSync), 3, "detached after close")
}

func TestPresenceService_Events(t *testing.T) {
	rt := newFakeRealtime(false)
	s := NewPresenceService(rt)
	defer s.Close()

	rt.fire(constant.EventStatusSync, `{
		"u1": {"online": true, "last_connection": "2025-01-01T10:00:00Z"},
		"u2": {"online": false, "last_connection": "2025-01-01T09:00:00Z", "extra": 1}
	}`)
	assert.True(t, s.IsUserOnline("u1"))
	assert.False(t, s.IsUserOnline("u2"))

	rt.fire(constant.EventUserStatusChanged, `{"user_id": "u1", "online": false, "last_connection": "2025-01-01T11:00:00Z"}`)
	st := s.GetUserStatus("u1")
	assert.False(t, st.Online)
	require.NotNil(t, st.LastConnection)
	assert.Equal(t, 11, st.LastConnection.UTC().Hour())

	// a later sync merges, unknown keys are kept
	rt.fire(constant.EventStatusSync, `{"u3": {"online": true}}`)
	snap := s.Snapshot()
	assert.Len(t, snap, 3)
	assert.True(t, snap["u3"].Online)

	rt.fire(constant.EventUserStatusChanged, `{"online": true}`)
	rt.fire(constant.EventStatusSync, `["not", "a", "map"]`)
	assert.Len(t, s.Snapshot(), 3)
}

func TestPresenceService_NilTransport(t *testing.T) {
	s := NewPresenceService(nil)
	assert.Error(t, s.RequestStatusSync())
	s.Close()
}

func TestFormatLastSeen(t *testing.T) {
	now := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name string
		st   entity.UserStatus
		want string
	}{
		{"online", entity.UserStatus{Online: true}, "online"},
		{"never seen", entity.UserStatus{}, "last seen a long time ago"},
		{"seconds", entity.UserStatus{LastConnection: at(20 * time.Second)}, "last seen just now"},
		{"minutes", entity.UserStatus{LastConnection: at(5 * time.Minute)}, "last seen 5 min ago"},
		{"hours", entity.UserStatus{LastConnection: at(3 * time.Hour)}, "last seen 3h ago"},
		{"days", entity.UserStatus{LastConnection: at(50 * time.Hour)}, "last seen 2d ago"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatLastSeen(tt.st, now))
		})
	}
}

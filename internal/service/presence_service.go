package service

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/internal/gateway"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/tidwall/gjson"
)

// PresenceService tracks the online state of other users
type PresenceService struct {
	rt Realtime

	mu       sync.RWMutex
	statuses map[string]entity.UserStatus
	subs     []*gateway.Subscription
}

// NewPresenceService subscribes to status events and requests a sync now
// if connected, and again on every (re)connect
func NewPresenceService(rt Realtime) *PresenceService {
	s := &PresenceService{
		rt:       rt,
		statuses: make(map[string]entity.UserStatus),
	}
	if rt == nil {
		return s
	}

	s.subs = []*gateway.Subscription{
		rt.On(constant.EventUserStatusChanged, s.handleStatusChanged),
		rt.On(constant.EventStatusSync, s.handleStatusSync),
		rt.On(constant.EventConnect, func(...json.RawMessage) { _ = s.RequestStatusSync() }),
	}
	if rt.IsConnected() {
		_ = s.RequestStatusSync()
	}
	return s
}

func (s *PresenceService) handleStatusChanged(args ...json.RawMessage) {
	r := gjson.ParseBytes(firstArg(args))
	userId := entity.IdOf(r.Get("user_id"))
	if userId == "" {
		log.Debug("status change without user id: %s", r.Raw)
		return
	}

	s.mu.Lock()
	s.statuses[userId] = entity.UserStatusFromJSON(r)
	s.mu.Unlock()
}

func (s *PresenceService) handleStatusSync(args ...json.RawMessage) {
	r := gjson.ParseBytes(firstArg(args))
	if !r.IsObject() {
		log.Debug("status sync is not a map: %s", r.Raw)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r.ForEach(func(key, value gjson.Result) bool {
		s.statuses[key.String()] = entity.UserStatusFromJSON(value)
		return true
	})
}

// RequestStatusSync asks the server for the full status map
func (s *PresenceService) RequestStatusSync() error {
	if s.rt == nil {
		return gateway.ErrNotConnected
	}
	if err := s.rt.Emit(constant.EventRequestStatusSync); err != nil {
		log.Debug("request status sync skipped: %v", err)
		return err
	}
	return nil
}

// GetUserStatus returns the last known status; unknown users are offline
func (s *PresenceService) GetUserStatus(userId string) entity.UserStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statuses[userId]
}

// IsUserOnline reports whether userId is known to be online
func (s *PresenceService) IsUserOnline(userId string) bool {
	return s.GetUserStatus(userId).Online
}

// Snapshot returns a copy of the status map
func (s *PresenceService) Snapshot() map[string]entity.UserStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]entity.UserStatus, len(s.statuses))
	for k, v := range s.statuses {
		out[k] = v
	}
	return out
}

// Close detaches the event handlers
func (s *PresenceService) Close() {
	if s.rt == nil {
		return
	}
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	s.rt.Off(subs...)
}

// FormatLastSeen renders a status as a short human label
func FormatLastSeen(st entity.UserStatus, now time.Time) string {
	if st.Online {
		return "online"
	}
	if st.LastConnection == nil {
		return "last seen a long time ago"
	}
	d := now.Sub(*st.LastConnection)
	switch {
	case d < time.Minute:
		return "last seen just now"
	case d < time.Hour:
		return fmt.Sprintf("last seen %d min ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("last seen %dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("last seen %dd ago", int(d.Hours()/24))
	}
}

package entity

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/tidwall/gjson"
)

// Participant is a normalized conversation member
type Participant struct {
	Id     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Conversation is the canonical conversation record.
//
// Mute state: Muted=false means not muted; Muted=true with a nil MuteUntil
// means muted indefinitely; otherwise muted until MuteUntil.
type Conversation struct {
	Id                   string        `json:"id"`
	Name                 string        `json:"name"`
	Avatar               string        `json:"avatar,omitempty"`
	IsGroup              bool          `json:"isGroup"`
	OtherUserId          string        `json:"otherUserId,omitempty"`
	Participants         []Participant `json:"participants"`
	LastMessage          string        `json:"lastMessage"`
	Time                 string        `json:"time,omitempty"`
	LastMessageTimestamp int64         `json:"lastMessageTimestamp,omitempty"`
	IsUnread             bool          `json:"isUnread"`
	IsPinned             bool          `json:"isPinned"`
	IsArchived           bool          `json:"isArchived"`
	Muted                bool          `json:"-"`
	MuteUntil            *time.Time    `json:"-"`

	// Raw is the untouched server record
	Raw json.RawMessage `json:"-"`
}

// MarshalJSON encodes muteUntil as absent, null or a timestamp
func (c Conversation) MarshalJSON() ([]byte, error) {
	type alias Conversation
	out := struct {
		alias
		MuteUntil json.RawMessage `json:"muteUntil,omitempty"`
	}{alias: alias(c)}

	if c.Muted {
		if c.MuteUntil == nil {
			out.MuteUntil = json.RawMessage("null")
		} else {
			b, err := json.Marshal(c.MuteUntil)
			if err != nil {
				return nil, err
			}
			out.MuteUntil = b
		}
	}
	return json.Marshal(out)
}

// Clone returns a deep copy
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Participants != nil {
		cp.Participants = make([]Participant, len(c.Participants))
		copy(cp.Participants, c.Participants)
	}
	if c.MuteUntil != nil {
		t := *c.MuteUntil
		cp.MuteUntil = &t
	}
	return &cp
}

// IsMuted reports whether the conversation is muted at now
func (c *Conversation) IsMuted(now time.Time) bool {
	if !c.Muted {
		return false
	}
	return c.MuteUntil == nil || c.MuteUntil.After(now)
}

// ApplyMute sets the mute state for duration, relative to now.
// Unknown durations unmute.
func (c *Conversation) ApplyMute(duration string, now time.Time) {
	var until time.Time
	switch duration {
	case constant.Mute8Hours:
		until = now.Add(8 * time.Hour)
	case constant.Mute1Week:
		until = now.Add(7 * 24 * time.Hour)
	case constant.MuteAlways:
		c.Muted = true
		c.MuteUntil = nil
		return
	default:
		c.Muted = false
		c.MuteUntil = nil
		return
	}
	c.Muted = true
	c.MuteUntil = &until
}

// NormalizeConversation maps one raw server conversation into the canonical
// record. selfId excludes the current user from "other participant" candidates.
func NormalizeConversation(raw json.RawMessage, selfId string) *Conversation {
	r := gjson.ParseBytes(raw)
	if !r.IsObject() {
		return nil
	}

	isGroup := r.Get("isGroup").Bool() || r.Get("type").String() == "group"
	participants := participantsOf(r)

	c := &Conversation{
		Id:           IdOf(firstExisting(r, "id", "_id", "chat_id", "chatId")),
		IsGroup:      isGroup,
		Participants: participants,
		IsUnread:     r.Get("isUnread").Bool(),
		IsPinned:     r.Get("isPinned").Bool(),
		IsArchived:   r.Get("isArchived").Bool(),
		Raw:          append(json.RawMessage(nil), raw...),
	}

	if isGroup {
		c.Name = firstString(r, "groupName", "name")
		if c.Name == "" {
			c.Name = constant.DefaultGroupName
		}
		c.Avatar = firstString(r, "groupAvatar", "avatar")
	} else {
		other := otherParticipant(r, participants, selfId)
		if other != nil {
			c.Name = other.Name
			c.Avatar = other.Avatar
			c.OtherUserId = other.Id
		}
		if c.Name == "" {
			c.Name = firstString(r, "name")
		}
		if c.Name == "" {
			c.Name = constant.DefaultConversationName
		}
		if c.Avatar == "" {
			c.Avatar = firstString(r, "avatar")
		}
		if c.OtherUserId == "" {
			c.OtherUserId = IdOf(r.Get("otherUserId"))
		}
	}

	last := firstExisting(r, "lastMessage", "last_message", "preview")
	if last.IsObject() {
		c.LastMessage = last.Get("content").String()
	} else {
		c.LastMessage = last.String()
	}

	lastTime := firstExisting(r, "lastMessageAt", "updated_at", "lastTime", "time")
	if lastTime.Exists() {
		c.Time = lastTime.String()
		if t, ok := ParseTime(lastTime); ok {
			c.LastMessageTimestamp = t.UnixMilli()
			if lastTime.Type == gjson.Number {
				c.Time = t.UTC().Format(time.RFC3339Nano)
			}
		}
	}
	if c.LastMessageTimestamp == 0 {
		c.LastMessageTimestamp = r.Get("lastMessageTimestamp").Int()
	}

	if mu := r.Get("muteUntil"); mu.Exists() {
		c.Muted = true
		if t, ok := ParseTime(mu); ok {
			c.MuteUntil = &t
		}
	}

	return c
}

// NormalizeConversations normalizes a list for user; nil entries are skipped
func NormalizeConversations(user *User, raws []json.RawMessage) []*Conversation {
	selfId := ""
	if user != nil {
		selfId = user.Id
	}
	out := make([]*Conversation, 0, len(raws))
	for _, raw := range raws {
		if c := NormalizeConversation(raw, selfId); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Renormalize re-derives the canonical record from a possibly partial or
// stale conversation. The server record in Raw is kept underneath so fields
// only the server knows survive.
func Renormalize(c *Conversation, selfId string) *Conversation {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return c.Clone()
	}
	merged := mergeObjects(c.Raw, data)
	n := NormalizeConversation(merged, selfId)
	if n == nil {
		return c.Clone()
	}
	if len(c.Raw) > 0 {
		n.Raw = append(json.RawMessage(nil), c.Raw...)
	}
	return n
}

// mergeObjects overlays the keys of top onto base; both must be JSON objects
func mergeObjects(base, top json.RawMessage) json.RawMessage {
	if !gjson.ValidBytes(base) || !gjson.ParseBytes(base).IsObject() {
		return top
	}
	m := make(map[string]json.RawMessage)
	if err := json.Unmarshal(base, &m); err != nil {
		return top
	}
	overlay := make(map[string]json.RawMessage)
	if err := json.Unmarshal(top, &overlay); err != nil {
		return top
	}
	// preview and mute state come from the overlay only; the server copies may be stale
	for _, k := range []string{"lastMessageAt", "updated_at", "lastTime", "last_message", "preview", "muteUntil"} {
		delete(m, k)
	}
	for k, v := range overlay {
		m[k] = v
	}
	out, err := json.Marshal(m)
	if err != nil {
		return top
	}
	return out
}

func participantsOf(r gjson.Result) []Participant {
	list := firstExisting(r, "participants", "users", "members")
	if list.IsObject() {
		list = list.Get("users")
	}
	if !list.IsArray() {
		return []Participant{}
	}
	out := make([]Participant, 0, len(list.Array()))
	for _, item := range list.Array() {
		if p, ok := participantOf(item); ok {
			out = append(out, p)
		}
	}
	return out
}

func participantOf(r gjson.Result) (Participant, bool) {
	switch {
	case r.Type == gjson.String || r.Type == gjson.Number:
		return Participant{Id: scalarId(r)}, true
	case r.IsObject():
		base := r
		if r.Get("user").IsObject() {
			base = r.Get("user")
		}
		name := firstString(base, "name", "fullName", "displayName", "email")
		if name == "" {
			name = constant.DefaultParticipantName
		}
		return Participant{
			Id:     IdOf(r),
			Name:   name,
			Avatar: firstString(base, "avatar", "photo", "picture"),
		}, true
	default:
		return Participant{}, false
	}
}

// otherParticipant picks the non-self candidate with the most populated
// display fields; ties keep the first found among participants, otherUser,
// partner and partner.user.
func otherParticipant(r gjson.Result, participants []Participant, selfId string) *Participant {
	candidates := make([]Participant, 0, len(participants)+3)
	for _, p := range participants {
		if p.Id != "" && (selfId == "" || p.Id != selfId) {
			candidates = append(candidates, p)
		}
	}
	for _, path := range []string{"otherUser", "partner", "partner.user"} {
		v := r.Get(path)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		p, ok := participantOf(v)
		if !ok || (selfId != "" && p.Id == selfId) {
			continue
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		return nil
	}

	score := func(p Participant) int {
		s := 0
		if p.Name != "" {
			s++
		}
		if p.Avatar != "" {
			s++
		}
		return s
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return score(candidates[i]) > score(candidates[j])
	})
	best := candidates[0]
	return &best
}

// ConversationFilter selects conversations for display
type ConversationFilter struct {
	IncludeArchived bool
	OnlyArchived    bool
	OnlyUnread      bool
	Query           string // case-insensitive match on name or last message
}

// SortForDisplay filters by f and orders pinned conversations first, then
// by last message time, newest first. The input slice is not modified.
func SortForDisplay(convs []*Conversation, f ConversationFilter) []*Conversation {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]*Conversation, 0, len(convs))
	for _, c := range convs {
		if c == nil {
			continue
		}
		if f.OnlyArchived && !c.IsArchived {
			continue
		}
		if !f.OnlyArchived && !f.IncludeArchived && c.IsArchived {
			continue
		}
		if f.OnlyUnread && !c.IsUnread {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(c.Name), q) &&
			!strings.Contains(strings.ToLower(c.LastMessage), q) {
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.IsPinned != b.IsPinned {
			return a.IsPinned
		}
		return a.LastMessageTimestamp > b.LastMessageTimestamp
	})
	return out
}

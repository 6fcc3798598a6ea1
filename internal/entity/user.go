package entity

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"
)

// User is the canonical authenticated or searched user
type User struct {
	Id     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// UserFromJSON builds a User from any of the server user shapes
func UserFromJSON(raw json.RawMessage) *User {
	r := gjson.ParseBytes(raw)
	if !r.IsObject() {
		return nil
	}
	base := r
	if r.Get("user").IsObject() {
		base = r.Get("user")
	}
	u := &User{
		Id:     IdOf(r),
		Name:   firstString(base, "name", "fullName", "displayName"),
		Email:  firstString(base, "email"),
		Avatar: firstString(base, "avatar", "photo", "picture"),
	}
	if u.Id == "" {
		return nil
	}
	return u
}

// UserStatus is the presence state of a remote user
type UserStatus struct {
	Online         bool       `json:"online"`
	LastConnection *time.Time `json:"last_connection"`
}

// UserStatusFromJSON decodes one presence entry; unknown fields are ignored
func UserStatusFromJSON(r gjson.Result) UserStatus {
	st := UserStatus{Online: r.Get("online").Bool()}
	if t, ok := ParseTime(r.Get("last_connection")); ok {
		st.LastConnection = &t
	}
	return st
}

package entity

import (
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// NowUnixMilli returns current unix timestamp in milliseconds
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// idPaths are tried in order when an id is embedded in an object
var idPaths = []string{"_id", "id", "userId", "user._id", "user.id"}

// IdOf resolves r to one canonical string id. Strings are returned as is,
// numbers as their decimal text, objects through _id, id, userId, user._id
// and user.id. Anything else yields "".
func IdOf(r gjson.Result) string {
	if id := scalarId(r); id != "" {
		return id
	}
	if !r.IsObject() {
		return ""
	}
	for _, p := range idPaths {
		v := r.Get(p)
		if id := scalarId(v); id != "" {
			return id
		}
		// Mongo extended JSON, e.g. {"_id": {"$oid": "..."}}
		if v.IsObject() {
			if id := scalarId(v.Get(`\$oid`)); id != "" {
				return id
			}
		}
	}
	return ""
}

func scalarId(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Number:
		return r.Raw
	default:
		return ""
	}
}

// firstString returns the first non-empty string value among paths
func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		v := r.Get(p)
		switch v.Type {
		case gjson.String:
			if v.Str != "" {
				return v.Str
			}
		case gjson.Number:
			return v.Raw
		}
	}
	return ""
}

// firstExisting returns the first value among paths that is present and not null or empty
func firstExisting(r gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		v := r.Get(p)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		if v.Type == gjson.String && v.Str == "" {
			continue
		}
		return v
	}
	return gjson.Result{}
}

// ParseTime accepts RFC 3339 strings, date-only strings and epoch millis
func ParseTime(r gjson.Result) (time.Time, bool) {
	switch r.Type {
	case gjson.Number:
		return time.UnixMilli(r.Int()), true
	case gjson.String:
		return parseTimeString(r.Str)
	default:
		return time.Time{}, false
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), true
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ClockTime formats t as the local HH:MM display string
func ClockTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("15:04")
}

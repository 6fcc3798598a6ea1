package jwt

import (
	"context"
	"net/http"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cookieNames(cookies []*http.Cookie) []string {
	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		names = append(names, c.Name)
	}
	return names
}

func TestCookieJarStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cookies.yaml")
	login, _ := url.Parse("http://chat.local/api/auth/login")
	api, _ := url.Parse("http://chat.local/api/chats")

	s, err := NewCookieJarStore(path)
	require.NoError(t, err)
	assert.NoFileExists(t, path)

	s.SetCookies(login, []*http.Cookie{
		{Name: "session", Value: "issued", Path: "/", HttpOnly: true},
		{Name: "hint", Value: "x", Path: "/", MaxAge: 3600},
	})
	assert.ElementsMatch(t, []string{"session", "hint"}, cookieNames(s.Cookies(api)))

	token, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, token, "the credential never leaves the jar")

	t.Run("cookies survive the process", func(t *testing.T) {
		next, err := NewCookieJarStore(path)
		require.NoError(t, err)
		got := next.Cookies(api)
		require.Len(t, got, 2)
		assert.ElementsMatch(t, []string{"session", "hint"}, cookieNames(got))
	})

	t.Run("server deletion is persisted", func(t *testing.T) {
		s.SetCookies(login, []*http.Cookie{{Name: "hint", Value: "", Path: "/", MaxAge: -1}})
		next, err := NewCookieJarStore(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"session"}, cookieNames(next.Cookies(api)))
	})

	t.Run("remove forgets everything", func(t *testing.T) {
		require.NoError(t, s.Remove(ctx))
		assert.Empty(t, s.Cookies(api))
		assert.NoFileExists(t, path)

		next, err := NewCookieJarStore(path)
		require.NoError(t, err)
		assert.Empty(t, next.Cookies(api))
	})
}

func TestCookieJarStore_DropsExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.yaml")
	u, _ := url.Parse("http://chat.local/api/auth/login")
	now := time.Now()

	s, err := NewCookieJarStore(path)
	require.NoError(t, err)
	s.SetCookies(u, []*http.Cookie{{Name: "session", Value: "issued", Path: "/", Expires: now.Add(time.Hour)}})

	next, err := NewCookieJarStore(path)
	require.NoError(t, err)
	require.Len(t, next.Cookies(u), 1)

	later, err := newCookieJarStore(path, func() time.Time { return now.Add(2 * time.Hour) })
	require.NoError(t, err)
	assert.Empty(t, later.Cookies(u))
	assert.Empty(t, later.cookies)
}

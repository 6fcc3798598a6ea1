package jwt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
	"gopkg.in/yaml.v3"
)

// storedCookie is one cookie as written to the cookie file
type storedCookie struct {
	URL      string    `yaml:"url"`
	Name     string    `yaml:"name"`
	Value    string    `yaml:"value"`
	Path     string    `yaml:"path,omitempty"`
	Domain   string    `yaml:"domain,omitempty"`
	Expires  time.Time `yaml:"expires,omitempty"`
	Secure   bool      `yaml:"secure,omitempty"`
	HttpOnly bool      `yaml:"http_only,omitempty"`
}

func (c storedCookie) sameAs(o storedCookie) bool {
	return c.Name == o.Name && c.Path == o.Path && c.Domain == o.Domain
}

// CookieJarStore is the credential store of the cookie strategy. The server
// owns the credential as an HttpOnly cookie, so Get never returns a token;
// the store is the http.CookieJar of the client and keeps its cookies in a
// YAML file so a login survives the process. Remove forgets every cookie.
type CookieJarStore struct {
	path string
	now  func() time.Time

	mu      sync.Mutex
	jar     *cookiejar.Jar
	cookies []storedCookie
}

// NewCookieJarStore creates a jar backed by path and loads the cookies that
// have not expired yet
func NewCookieJarStore(path string) (*CookieJarStore, error) {
	return newCookieJarStore(path, time.Now)
}

func newCookieJarStore(path string, now func() time.Time) (*CookieJarStore, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	s := &CookieJarStore{path: path, now: now, jar: jar}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file path
func (s *CookieJarStore) Path() string {
	return s.path
}

func (s *CookieJarStore) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cookie file: %w", err)
	}

	var stored []storedCookie
	if err := yaml.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to decode cookie file: %w", err)
	}

	now := s.now()
	for _, c := range stored {
		if !c.Expires.IsZero() && !c.Expires.After(now) {
			continue
		}
		u, err := url.Parse(c.URL)
		if err != nil || u.Host == "" {
			continue
		}
		s.jar.SetCookies(u, []*http.Cookie{{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}})
		s.cookies = append(s.cookies, c)
	}
	return nil
}

// SetCookies stores the cookies of a response and rewrites the cookie file
func (s *CookieJarStore) SetCookies(u *url.URL, cookies []*http.Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jar.SetCookies(u, cookies)

	now := s.now()
	origin := url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}
	for _, hc := range cookies {
		c := storedCookie{
			URL:      origin.String(),
			Name:     hc.Name,
			Value:    hc.Value,
			Path:     hc.Path,
			Domain:   hc.Domain,
			Expires:  hc.Expires,
			Secure:   hc.Secure,
			HttpOnly: hc.HttpOnly,
		}
		if hc.MaxAge > 0 {
			c.Expires = now.Add(time.Duration(hc.MaxAge) * time.Second)
		}

		kept := s.cookies[:0]
		for _, old := range s.cookies {
			if !old.sameAs(c) {
				kept = append(kept, old)
			}
		}
		s.cookies = kept

		deleted := hc.MaxAge < 0 || (!c.Expires.IsZero() && !c.Expires.After(now))
		if !deleted {
			s.cookies = append(s.cookies, c)
		}
	}

	if err := s.saveLocked(); err != nil {
		log.Warn("persist cookies failed: path=%s, error=%v", s.path, err)
	}
}

// Cookies returns the cookies to send with a request to u
func (s *CookieJarStore) Cookies(u *url.URL) []*http.Cookie {
	s.mu.Lock()
	jar := s.jar
	s.mu.Unlock()
	return jar.Cookies(u)
}

func (s *CookieJarStore) saveLocked() error {
	if len(s.cookies) == 0 {
		return s.removeFileLocked()
	}
	data, err := yaml.Marshal(s.cookies)
	if err != nil {
		return fmt.Errorf("failed to encode cookie file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create cookie dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write cookie file: %w", err)
	}
	return nil
}

func (s *CookieJarStore) removeFileLocked() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove cookie file: %w", err)
	}
	return nil
}

func (s *CookieJarStore) Get(context.Context) (string, error) { return "", nil }
func (s *CookieJarStore) Set(context.Context, string) error   { return nil }

// Remove drops every cookie from memory and disk
func (s *CookieJarStore) Remove(_ context.Context) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("failed to create cookie jar: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jar = jar
	s.cookies = nil
	return s.removeFileLocked()
}

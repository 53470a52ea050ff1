package rituals

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
)

const hubsBody = `[
  {"hub": {"hash": "abc", "attributes": {"roomnamec": "Living", "fanc": "1"},
           "sensors": {"battc": {"title": "Medium"}, "fillc": {"title": "50-60%"},
                       "rfidc": {"title": "The Ritual of Karma"}, "wific": {"title": "Good"}}}},
  {"hub": {"hash": "def", "attributes": {"fanc": "0"}, "sensors": {}}}
]`

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeCloud struct {
	logins    int32
	hubCalls  int32
	expireOne int32
}

func (f *fakeCloud) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ocapi/login", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.logins, 1)
		if r.Method != http.MethodPost {
			t.Errorf("login method = %s", r.Method)
		}
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("login body: %v", err)
		}
		if req.Email != "me@example.com" || req.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"account_hash": "acct-1"}`))
	})
	mux.HandleFunc("/api/account/hubs/acct-1", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.hubCalls, 1)
		if atomic.CompareAndSwapInt32(&f.expireOne, 1, 0) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(hubsBody))
	})
	return mux
}

func TestGetHubs(t *testing.T) {
	cloud := &fakeCloud{}
	srv := httptest.NewServer(cloud.handler(t))
	defer srv.Close()

	c := NewClient(srv.URL, "me@example.com", "secret", srv.Client(), testLogger())
	hubs, err := c.GetHubs(context.Background())
	if err != nil {
		t.Fatalf("GetHubs: %v", err)
	}
	if len(hubs) != 2 {
		t.Fatalf("expected 2 hubs, got %d", len(hubs))
	}
	living, ok := hubs["Living"]
	if !ok {
		t.Fatalf("hub keyed by room name missing: %v", hubs.Names())
	}
	if title, _ := living.Title("battc"); title != "Medium" {
		t.Errorf("battc title = %q", title)
	}
	if _, ok := hubs["def"]; !ok {
		t.Errorf("unnamed hub should be keyed by hash: %v", hubs.Names())
	}

	if _, err := c.GetHubs(context.Background()); err != nil {
		t.Fatalf("second GetHubs: %v", err)
	}
	if n := atomic.LoadInt32(&cloud.logins); n != 1 {
		t.Errorf("expected session reuse, got %d logins", n)
	}
}

func TestGetHubsReauthenticatesAfterExpiry(t *testing.T) {
	cloud := &fakeCloud{expireOne: 1}
	srv := httptest.NewServer(cloud.handler(t))
	defer srv.Close()

	c := NewClient(srv.URL, "me@example.com", "secret", srv.Client(), testLogger())
	_, err := c.GetHubs(context.Background())
	if KindOf(err) != KindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
	if _, err := c.GetHubs(context.Background()); err != nil {
		t.Fatalf("GetHubs after expiry: %v", err)
	}
	if n := atomic.LoadInt32(&cloud.logins); n != 2 {
		t.Errorf("expected a fresh login, got %d logins", n)
	}
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    Kind
	}{
		{"bad credentials", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}, KindAuth},
		{"empty hash", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}, KindAuth},
		{"garbage login", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		}, KindDecode},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}, KindStatus},
		{"garbage hubs", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/ocapi/login" {
				w.Write([]byte(`{"account_hash": "x"}`))
				return
			}
			w.Write([]byte(`{"not": "a list"}`))
		}, KindDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClient(srv.URL, "u", "p", srv.Client(), testLogger())
			_, err := c.GetHubs(context.Background())
			if got := KindOf(err); got != tt.want {
				t.Errorf("KindOf(%v) = %s, want %s", err, got, tt.want)
			}
		})
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, "u", "p", nil, testLogger())
	_, err := c.GetHubs(context.Background())
	if KindOf(err) != KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
	var re *Error
	if !errors.As(err, &re) || re.Op != "login" {
		t.Errorf("unexpected error detail: %v", err)
	}
}

func TestKindOfForeignError(t *testing.T) {
	if KindOf(errors.New("boom")) != KindUnknown {
		t.Error("foreign errors should be KindUnknown")
	}
}

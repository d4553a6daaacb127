package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestEnabled_ReflectsConfiguredURL(t *testing.T) {
	if New("", "").Enabled() {
		t.Fatalf("expected an empty URL to disable the notifier")
	}
	if !New("http://example.invalid", "").Enabled() {
		t.Fatalf("expected a non-empty URL to enable the notifier")
	}
}

func TestNotify_DisabledNeverCallsOut(t *testing.T) {
	called := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called <- struct{}{}
	}))
	defer srv.Close()

	n := New("", "") // disabled regardless of what srv.URL would have been
	n.Notify(context.Background(), Event{InviteCode: "x"})

	select {
	case <-called:
		t.Fatalf("expected a disabled notifier to never make a request")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNotify_DeliversEventBody(t *testing.T) {
	received := make(chan Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev Event
		_ = json.NewDecoder(r.Body).Decode(&ev)
		received <- ev
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, "")
	n.Notify(context.Background(), Event{InviteCode: "HASHPASS-ABC", Fingerprint: "fp-1", DifficultyAt: 12})

	select {
	case ev := <-received:
		if ev.InviteCode != "HASHPASS-ABC" || ev.Fingerprint != "fp-1" || ev.DifficultyAt != 12 {
			t.Fatalf("unexpected event payload delivered: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the webhook delivery")
	}
}

func TestNotify_SetsBearerAuthorizationWhenTokenConfigured(t *testing.T) {
	gotAuth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, "s3cr3t")
	n.Notify(context.Background(), Event{InviteCode: "x"})

	select {
	case auth := <-gotAuth:
		if auth != "Bearer s3cr3t" {
			t.Fatalf("expected Authorization header %q, got %q", "Bearer s3cr3t", auth)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the webhook delivery")
	}
}

func TestDeliver_RetriesOnServerError(t *testing.T) {
	var attempts int
	done := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		done <- struct{}{}
	}))
	defer srv.Close()

	n := New(srv.URL, "")
	n.Notify(context.Background(), Event{InviteCode: "retry-me"})

	select {
	case <-done:
		if attempts < 2 {
			t.Fatalf("expected at least 2 attempts after an initial 500, got %d", attempts)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for the retried delivery to succeed")
	}
}

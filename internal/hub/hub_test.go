package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// dialTestChannel spins up a real websocket connection so Channel.close can
// call conn.Close() on something real, rather than a nil *websocket.Conn.
func dialTestChannel(t *testing.T, id string) *Channel {
	t.Helper()

	upgrade := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = upgrade.Upgrade(w, r, nil)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing test websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return newChannel(id, "tok", "1.2.3.4", conn)
}

func TestUnregister_IsIdempotent(t *testing.T) {
	h := newTestHub()
	h.sessions = noopSessionIssuer{}
	ch := dialTestChannel(t, "chan-1")

	h.register(ch)
	if got := h.connsByIP["1.2.3.4"]; got != 1 {
		t.Fatalf("expected 1 connection tracked after register, got %d", got)
	}

	h.unregister(ch)
	h.unregister(ch) // simulates Serve's deferred call racing Broadcast's

	if got := h.connsByIP["1.2.3.4"]; got != 0 {
		t.Fatalf("expected connsByIP to settle at 0 after a double unregister, got %d", got)
	}
}

func TestEnqueueAndClose_NeverPanicsUnderConcurrency(t *testing.T) {
	ch := dialTestChannel(t, "chan-2")
	go ch.writePump()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch.enqueue([]byte(`{"type":"PONG"}`))
		}()
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch.close()
		}()
	}
	wg.Wait()
}

type noopSessionIssuer struct{}

func (noopSessionIssuer) Validate(token, ip string) bool { return false }
func (noopSessionIssuer) Issue(ip string) (string, error) { return "", nil }
func (noopSessionIssuer) MarkConnected(token string)      {}
func (noopSessionIssuer) MarkDisconnected(token string)   {}

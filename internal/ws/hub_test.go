package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"messaging-service/internal/models"
)

func newConnPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()
	serverCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverCh <- conn
	}))
	t.Cleanup(srv.Close)

	client, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { client.Close() })

	select {
	case server = <-serverCh:
	case <-time.After(time.Second):
		t.Fatalf("server side never upgraded")
	}
	t.Cleanup(func() { server.Close() })
	return server, client
}

func TestHubRegisterAndUnregister(t *testing.T) {
	hub := NewHub()

	hub.Register(1, nil, ConnInfo{UserID: 1})
	if len(hub.userChans) != 1 {
		t.Fatalf("expected user channel to be created")
	}

	hub.Unregister(1, nil)
	if len(hub.userChans) != 0 {
		t.Fatalf("expected user channel to be removed")
	}
}

func TestHubSubscribeAndUnsubscribe(t *testing.T) {
	hub := NewHub()

	hub.Subscribe(2, nil, ConnInfo{UserID: 1})
	if len(hub.topics) != 1 {
		t.Fatalf("expected topic to be created")
	}

	hub.Unsubscribe(2, nil)
	if len(hub.topics) != 0 {
		t.Fatalf("expected topic to be removed")
	}
}

func TestHubNotifyWithoutSubscribersIsNoop(t *testing.T) {
	hub := NewHub()

	hub.NotifyMessageDeleted(5, 7)
	hub.NotifyError(1, "nothing listening")
}

// One connection may be written to by several REST handlers and frame loops
// at once; gorilla conns allow only a single concurrent writer.
func TestHubSerializesWritesToOneConnection(t *testing.T) {
	hub := NewHub()
	server, client := newConnPair(t)
	hub.Register(1, server, newConnInfo(1, httptest.NewRequest(http.MethodGet, "/ws", nil), "", ""))

	const writers = 24
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.NotifyError(1, "busy")
		}()
	}
	wg.Wait()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < writers; i++ {
		var event models.Event
		if err := client.ReadJSON(&event); err != nil {
			t.Fatalf("read event %d: %v", i, err)
		}
		if event.Type != models.EventError {
			t.Fatalf("expected %q event, got %q", models.EventError, event.Type)
		}
	}
}

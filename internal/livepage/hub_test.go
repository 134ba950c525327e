package livepage

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mediamatic/ikdisplay/internal/logging"
	"github.com/mediamatic/ikdisplay/internal/models"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(logging.NewLogger())
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dialFeed(t *testing.T, srv *httptest.Server, feed string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?feed=" + feed
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) *Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return &msg
}

func waitHistory(t *testing.T, hub *Hub, feed string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mutex.RLock()
		got := len(hub.history[feed])
		hub.mutex.RUnlock()
		if got == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("history for %q never reached %d entries", feed, want)
}

func notification(title string) models.Notification {
	return models.Notification{models.KeyTitle: title}
}

func TestLiveStream(t *testing.T) {
	hub, srv := startHub(t)
	conn := dialFeed(t, srv, "lobby")

	// Give the register a moment to land before broadcasting.
	waitClients(t, hub, 1)
	hub.Notify("lobby", []models.Notification{notification("Fred Pook")})

	msg := readMessage(t, conn)
	if msg.Type != "notification" || msg.Feed != "lobby" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Notification[models.KeyTitle] != "Fred Pook" {
		t.Errorf("title = %q", msg.Notification[models.KeyTitle])
	}
}

func TestHistoryReplayOnConnect(t *testing.T) {
	hub, srv := startHub(t)

	for i := 0; i < maxHistory+2; i++ {
		hub.Notify("lobby", []models.Notification{notification(fmt.Sprintf("entry %d", i))})
	}
	waitHistory(t, hub, "lobby", maxHistory)

	conn := dialFeed(t, srv, "lobby")
	for i := 0; i < maxHistory; i++ {
		msg := readMessage(t, conn)
		want := fmt.Sprintf("entry %d", i+2)
		if msg.Notification[models.KeyTitle] != want {
			t.Fatalf("replay %d = %q, want %q", i, msg.Notification[models.KeyTitle], want)
		}
	}

	// Live notifications follow the replay.
	hub.Notify("lobby", []models.Notification{notification("live")})
	if msg := readMessage(t, conn); msg.Notification[models.KeyTitle] != "live" {
		t.Errorf("live message = %q", msg.Notification[models.KeyTitle])
	}
}

func TestFeedIsolation(t *testing.T) {
	hub, srv := startHub(t)
	lobby := dialFeed(t, srv, "lobby")
	dialFeed(t, srv, "bar")
	waitClients(t, hub, 2)

	hub.Notify("bar", []models.Notification{notification("elsewhere")})
	hub.Notify("lobby", []models.Notification{notification("here")})

	if msg := readMessage(t, lobby); msg.Notification[models.KeyTitle] != "here" {
		t.Errorf("lobby received %q", msg.Notification[models.KeyTitle])
	}
}

func TestServeWSRequiresFeed(t *testing.T) {
	_, srv := startHub(t)

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func waitClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.clientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("client count never reached %d", want)
}

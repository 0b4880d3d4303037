package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/dog-race-platform/pkg/contracts/events"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readAnnouncement(t *testing.T, c *websocket.Conn) events.RaceAnnouncement {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var a events.RaceAnnouncement
	if err := c.ReadJSON(&a); err != nil {
		t.Fatalf("read: %v", err)
	}
	return a
}

func TestHub_BroadcastToAllAndPerRace(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	all := dial(t, srv)
	one := dial(t, srv)
	waitFor(t, func() bool { return hub.Subscribers(allRaces) == 2 })

	if err := one.WriteJSON(ClientMsg{Type: "subscribe", RaceID: 7}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitFor(t, func() bool { return hub.Subscribers(7) == 1 && hub.Subscribers(allRaces) == 1 })

	hub.Broadcast(events.RaceAnnouncement{Kind: events.RaceScheduled, RaceID: 8})
	hub.Broadcast(events.RaceAnnouncement{Kind: events.RaceFinished, RaceID: 7})

	if a := readAnnouncement(t, all); a.RaceID != 8 {
		t.Fatalf("all: first announcement %+v", a)
	}
	if a := readAnnouncement(t, all); a.RaceID != 7 {
		t.Fatalf("all: second announcement %+v", a)
	}
	if a := readAnnouncement(t, one); a.RaceID != 7 || a.Kind != events.RaceFinished {
		t.Fatalf("per race: %+v", a)
	}
}

func TestHub_PingAndDisconnect(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	c := dial(t, srv)
	if err := c.WriteJSON(ClientMsg{Type: "ping"}); err != nil {
		t.Fatalf("ping: %v", err)
	}
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var pong map[string]string
	if err := c.ReadJSON(&pong); err != nil || pong["type"] != "pong" {
		t.Fatalf("pong: %v %v", pong, err)
	}

	_ = c.Close()
	waitFor(t, func() bool { return hub.Subscribers(allRaces) == 0 })
}

func TestRelay_IgnoresBadPayload(t *testing.T) {
	hub := NewHub(nil)
	relay(hub, []byte("{not json"), zap.NewNop())

	b, _ := json.Marshal(events.RaceAnnouncement{Kind: events.RaceRunning, RaceID: 1})
	relay(hub, b, zap.NewNop())
}

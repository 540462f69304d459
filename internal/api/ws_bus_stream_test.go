package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"foldercache/internal/event"

	"github.com/gorilla/websocket"
)

type testMessage struct {
	Kind  string `json:"type"`
	Value string `json:"value"`
}

func (m testMessage) Type() string {
	return m.Kind
}

func TestServeWSBusStreamDeliversPayload(t *testing.T) {
	bus := event.NewBus[testMessage](context.Background(), event.BusOptions{})
	defer bus.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveWSBusStream(w, r, wsBusStreamConfig[testMessage]{Bus: bus})
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	go func() {
		time.Sleep(10 * time.Millisecond)
		bus.Publish(testMessage{Kind: "ping", Value: "hello"})
	}()

	_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	var payload testMessage
	if err := conn.ReadJSON(&payload); err != nil {
		t.Fatalf("read websocket: %v", err)
	}
	if payload.Value != "hello" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestServeWSBusStreamAppliesRequestFilter(t *testing.T) {
	bus := event.NewBus[testMessage](context.Background(), event.BusOptions{})
	defer bus.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveWSBusStream(w, r, wsBusStreamConfig[testMessage]{
			Bus: bus,
			Filter: func(r *http.Request) func(testMessage) bool {
				want := r.URL.Query().Get("type")
				return func(message testMessage) bool {
					return message.Kind == want
				}
			},
		})
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?type=keep"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for bus.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	bus.Publish(testMessage{Kind: "drop", Value: "first"})
	bus.Publish(testMessage{Kind: "keep", Value: "second"})

	_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	var payload testMessage
	if err := conn.ReadJSON(&payload); err != nil {
		t.Fatalf("read websocket: %v", err)
	}
	if payload.Value != "second" {
		t.Fatalf("expected filtered payload, got %v", payload)
	}
}

func TestServeWSBusStreamRequiresToken(t *testing.T) {
	bus := event.NewBus[testMessage](context.Background(), event.BusOptions{})
	defer bus.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveWSBusStream(w, r, wsBusStreamConfig[testMessage]{Bus: bus, AuthToken: "secret"})
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial without token to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token=secret", nil)
	if err != nil {
		t.Fatalf("dial with token: %v", err)
	}
	_ = conn.Close()
}

func TestServeWSBusStreamReplaysHistory(t *testing.T) {
	bus := event.NewBus[testMessage](context.Background(), event.BusOptions{HistorySize: 4})
	defer bus.Close()
	bus.Publish(testMessage{Kind: "mount_added", Value: "/media/usb"})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveWSBusStream(w, r, wsBusStreamConfig[testMessage]{Bus: bus, Replay: true})
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	bus.Publish(testMessage{Kind: "mount_removed", Value: "/media/usb"})

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	for _, want := range []string{"mount_added", "mount_removed"} {
		var payload testMessage
		if err := conn.ReadJSON(&payload); err != nil {
			t.Fatalf("read websocket: %v", err)
		}
		if payload.Kind != want {
			t.Fatalf("expected %s, got %v", want, payload)
		}
	}
}

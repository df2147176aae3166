package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/yegors/co-rwsl/internal/airport"
	"github.com/yegors/co-rwsl/internal/rwsl"
	"github.com/yegors/co-rwsl/pkg/logger"
)

func sampleOutput() rwsl.Output {
	return rwsl.Output{
		Timestamp: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Lights: map[string]rwsl.LightState{
			"REL-36A": {FixtureID: "REL-36A", Type: airport.FixtureREL, RunwayID: "18/36", Active: true, Severity: rwsl.SeverityHigh},
			"THL-09":  {FixtureID: "THL-09", Type: airport.FixtureTHL, RunwayID: "09/27"},
			"RIL-X":   {FixtureID: "RIL-X", Type: airport.FixtureRIL},
		},
		Conflicts: []rwsl.ConflictEvent{
			{ID: "a", Severity: rwsl.SeverityMedium, RunwayIDs: []string{"18/36"}},
			{ID: "b", Severity: rwsl.SeverityCritical, RunwayIDs: []string{"09/27"}},
			{ID: "c", Severity: rwsl.SeverityHigh, RunwayIDs: []string{"18/36", "09/27"}},
		},
		Occupancy: []rwsl.RunwayOccupancy{{RunwayID: "18/36"}, {RunwayID: "09/27"}},
		Health:    rwsl.Health{Status: rwsl.StatusOnline, Score: 100},
	}
}

func conflictIDs(cs []rwsl.ConflictEvent) []string {
	ids := make([]string, 0, len(cs))
	for _, c := range cs {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestFilterMessage(t *testing.T) {
	msg := StateMessage(sampleOutput())

	if got := filterMessage(nil, msg); got != msg {
		t.Error("nil filters should pass the message through untouched")
	}

	f := &ClientFilters{RunwayIDs: map[string]bool{"18/36": true}, MinSeverity: rwsl.SeverityHigh}
	got := filterMessage(f, msg)

	lights := got.Data["lights"].(map[string]rwsl.LightState)
	var ids []string
	for id := range lights {
		ids = append(ids, id)
	}
	if diff := cmp.Diff([]string{"REL-36A", "RIL-X"}, ids, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Errorf("lights mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"c"}, conflictIDs(got.Data["conflicts"].([]rwsl.ConflictEvent))); diff != "" {
		t.Errorf("conflicts mismatch (-want +got):\n%s", diff)
	}
	if occ := got.Data["occupancy"].([]rwsl.RunwayOccupancy); len(occ) != 1 || occ[0].RunwayID != "18/36" {
		t.Errorf("occupancy = %+v", occ)
	}
	// The original message is left intact for other clients
	if len(msg.Data["lights"].(map[string]rwsl.LightState)) != 3 {
		t.Error("filter mutated the shared message")
	}

	alert := ConflictAlertMessage(sampleOutput().Conflicts[0])
	if filterMessage(f, alert) != nil {
		t.Error("MEDIUM alert should be filtered at HIGH minimum")
	}
	alert = ConflictAlertMessage(sampleOutput().Conflicts[2])
	if filterMessage(f, alert) == nil {
		t.Error("HIGH alert on a selected runway should pass")
	}
}

type recordingHandler struct {
	got chan string
}

func (h *recordingHandler) HandleMessage(client *Client, messageType string, data map[string]any) error {
	h.got <- messageType
	return nil
}

func startHub(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	hub := NewServer(16, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleConnection))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcastJSONAndMsgpack(t *testing.T) {
	hub, srv := startHub(t)
	jsonConn := dial(t, srv, "")
	binConn := dial(t, srv, "?encoding=msgpack")
	waitForClients(t, hub, 2)

	hub.Broadcast(StateMessage(sampleOutput()))

	jsonConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var jm struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := jsonConn.ReadJSON(&jm); err != nil {
		t.Fatalf("json read: %v", err)
	}
	if jm.Type != MessageTypeState {
		t.Errorf("json type = %q", jm.Type)
	}
	if lights, ok := jm.Data["lights"].(map[string]any); !ok || len(lights) != 3 {
		t.Errorf("json lights = %v", jm.Data["lights"])
	}

	binConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	frameType, payload, err := binConn.ReadMessage()
	if err != nil {
		t.Fatalf("msgpack read: %v", err)
	}
	if frameType != websocket.BinaryMessage {
		t.Errorf("frame type = %d, want binary", frameType)
	}
	var bm struct {
		Type string         `msgpack:"type"`
		Data map[string]any `msgpack:"data"`
	}
	if err := msgpack.Unmarshal(payload, &bm); err != nil {
		t.Fatalf("msgpack decode: %v", err)
	}
	if bm.Type != MessageTypeState {
		t.Errorf("msgpack type = %q", bm.Type)
	}
	if _, ok := bm.Data["health"]; !ok {
		t.Error("msgpack payload missing health")
	}
}

func TestIncomingMessagesReachHandler(t *testing.T) {
	hub, srv := startHub(t)
	h := &recordingHandler{got: make(chan string, 2)}
	hub.SetMessageHandler(h)

	conn := dial(t, srv, "")
	waitForClients(t, hub, 1)

	if err := conn.WriteJSON(map[string]any{"type": MessageTypeStateRequest, "data": map[string]any{}}); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-h.got:
		if got != MessageTypeStateRequest {
			t.Errorf("handler got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}

	// A malformed frame is answered with an error message
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply Message
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	if reply.Type != MessageTypeError {
		t.Errorf("reply type = %q", reply.Type)
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "")
	waitForClients(t, hub, 1)
	conn.Close()
	waitForClients(t, hub, 0)
}

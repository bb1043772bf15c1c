package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenomenon0/bet-copilot/pkg/resilience/breaker"
)

func dial(t *testing.T, h *Hub) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestBroadcastReachesClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(nil)
	go h.Run(ctx)

	conn, closeAll := dial(t, h)
	defer closeAll()

	h.BroadcastAnalysis("Arsenal v Chelsea", map[string]string{"home": "Arsenal", "away": "Chelsea"})
	ev := readEvent(t, conn)
	assert.Equal(t, EventTypeAnalysis, ev.Type)
	assert.Equal(t, "Arsenal v Chelsea", ev.Fixture)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Timestamp.IsZero())

	h.OnBreakerStateChange("gemini", breaker.Closed, breaker.Open)
	ev = readEvent(t, conn)
	assert.Equal(t, EventTypeBreaker, ev.Type)
	data := ev.Data.(map[string]interface{})
	assert.Equal(t, "gemini", data["provider"])
	assert.Equal(t, "open", data["to"])
}

func TestUnsubscribeFiltersEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(nil)
	go h.Run(ctx)

	conn, closeAll := dial(t, h)
	defer closeAll()

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "unsubscribe", "events": []string{"error"},
	}))
	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		for s := range h.subs {
			return !s.wants(Event{Type: EventTypeError})
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	h.BroadcastError(errors.New("odds feed down"), "odds")
	h.BroadcastValueBet("Arsenal v Chelsea", map[string]float64{"ev": 0.12})

	ev := readEvent(t, conn)
	assert.Equal(t, EventTypeValueBet, ev.Type)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(nil)
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	conn, closeAll := dial(t, h)
	defer closeAll()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	assert.Zero(t, h.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestFollowFiltersFixtures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(nil)
	go h.Run(ctx)

	conn, closeAll := dial(t, h)
	defer closeAll()

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "follow", "fixtures": []string{"everton  v liverpool"},
	}))
	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		for s := range h.subs {
			return !s.wants(Event{Type: EventTypeAnalysis, Fixture: "Arsenal v Chelsea"})
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	h.BroadcastAnalysis("Arsenal v Chelsea", "skipped")
	h.BroadcastValueBet("Everton v Liverpool", "kept")

	ev := readEvent(t, conn)
	assert.Equal(t, EventTypeValueBet, ev.Type)
	assert.Equal(t, "kept", ev.Data)
}

func TestReplaysLatestAnalysisOnConnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(nil)
	go h.Run(ctx)

	h.BroadcastAnalysis("Arsenal v Chelsea", "first")
	h.BroadcastAnalysis("arsenal v chelsea", "second")
	h.BroadcastAnalysis("Everton v Liverpool", "third")
	require.Eventually(t, func() bool {
		return len(h.events) == 0
	}, 2*time.Second, 10*time.Millisecond)
	// The last event may still be in flight inside Run.
	time.Sleep(50 * time.Millisecond)

	conn, closeAll := dial(t, h)
	defer closeAll()

	assert.Equal(t, "second", readEvent(t, conn).Data)
	assert.Equal(t, "third", readEvent(t, conn).Data)
}

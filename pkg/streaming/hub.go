// Package streaming pushes analyses, value bets and breaker transitions to
// WebSocket clients.
//
// A client receives every event type until it sends
//
//	{"type":"unsubscribe","events":["heartbeat"]}
//
// and every fixture until it sends
//
//	{"type":"follow","fixtures":["Arsenal v Chelsea"]}
//
// On connect the latest analysis of each fixture is replayed.
package streaming

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/phenomenon0/bet-copilot/pkg/logging"
	"github.com/phenomenon0/bet-copilot/pkg/resilience/breaker"
)

// EventType represents the type of streaming event.
type EventType string

const (
	EventTypeAnalysis  EventType = "analysis"
	EventTypeValueBet  EventType = "value_bet"
	EventTypeBreaker   EventType = "breaker"
	EventTypeStatus    EventType = "status"
	EventTypeError     EventType = "error"
	EventTypeHeartbeat EventType = "heartbeat"
)

// AllEvents are the types a new client is subscribed to.
var AllEvents = []EventType{
	EventTypeAnalysis, EventTypeValueBet, EventTypeBreaker,
	EventTypeStatus, EventTypeError, EventTypeHeartbeat,
}

const (
	sendBuffer   = 256
	maxReplay    = 64
	readLimit    = 4096
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

// Event is a streaming event sent to clients. Fixture is set on
// match-scoped events.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Fixture   string    `json:"fixture,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// BreakerTransition is the payload of a breaker event.
type BreakerTransition struct {
	Provider string        `json:"provider"`
	From     breaker.State `json:"from"`
	To       breaker.State `json:"to"`
}

// Hub fans events out to WebSocket subscribers.
type Hub struct {
	subs       map[*subscriber]struct{}
	events     chan Event
	register   chan *subscriber
	unregister chan *subscriber
	done       chan struct{}
	mu         sync.RWMutex

	// replay holds the newest encoded analysis per fixture; owned by Run.
	replay      map[string][]byte
	replayOrder []string

	upgrader  websocket.Upgrader
	heartbeat time.Duration
	logger    *log.Logger
}

type subscriber struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	events   map[EventType]bool
	fixtures map[string]bool // empty follows every fixture
}

// NewHub creates a hub. Nothing is delivered until Run is started.
func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		subs:       make(map[*subscriber]struct{}),
		events:     make(chan Event, sendBuffer),
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		done:       make(chan struct{}),
		replay:     make(map[string][]byte),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		heartbeat: 30 * time.Second,
		logger:    logging.Component(logger, "ws"),
	}
}

// Run delivers events until ctx is done, then disconnects every
// subscriber. Run must be called at most once.
func (h *Hub) Run(ctx context.Context) {
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for s := range h.subs {
				delete(h.subs, s)
				close(s.send)
			}
			h.mu.Unlock()
			return

		case s := <-h.register:
			h.mu.Lock()
			h.subs[s] = struct{}{}
			n := len(h.subs)
			h.mu.Unlock()
			h.replayTo(s)
			h.logger.Info("client connected", "total", n)

		case s := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.subs[s]; ok {
				delete(h.subs, s)
				close(s.send)
			}
			n := len(h.subs)
			h.mu.Unlock()
			h.logger.Info("client disconnected", "remaining", n)

		case ev := <-h.events:
			h.deliver(ev)

		case <-heartbeat.C:
			h.deliver(Event{
				ID:        uuid.NewString(),
				Type:      EventTypeHeartbeat,
				Timestamp: time.Now(),
				Data:      map[string]int{"clients": h.ClientCount()},
			})
		}
	}
}

func (h *Hub) deliver(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to encode event", "type", ev.Type, "err", err)
		return
	}
	if ev.Type == EventTypeAnalysis && ev.Fixture != "" {
		h.remember(ev.Fixture, data)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if !s.wants(ev) {
			continue
		}
		select {
		case s.send <- data:
		default:
			// Slow consumer; drop it rather than stall the hub.
			close(s.send)
			delete(h.subs, s)
		}
	}
}

func (h *Hub) remember(fixture string, data []byte) {
	key := fixtureKey(fixture)
	if _, ok := h.replay[key]; !ok {
		h.replayOrder = append(h.replayOrder, key)
		if len(h.replayOrder) > maxReplay {
			delete(h.replay, h.replayOrder[0])
			h.replayOrder = h.replayOrder[1:]
		}
	}
	h.replay[key] = data
}

func (h *Hub) replayTo(s *subscriber) {
	for _, key := range h.replayOrder {
		select {
		case s.send <- h.replay[key]:
		default:
			return
		}
	}
}

// Broadcast queues an event for delivery. It never blocks: when the queue
// is full the event is dropped.
func (h *Hub) Broadcast(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	select {
	case h.events <- ev:
	default:
		h.logger.Warn("event queue full, dropping event", "type", ev.Type, "fixture", ev.Fixture)
	}
}

// BroadcastAnalysis publishes a finished analysis of fixture ("Home v Away").
func (h *Hub) BroadcastAnalysis(fixture string, analysis any) {
	h.Broadcast(Event{Type: EventTypeAnalysis, Fixture: fixture, Data: analysis})
}

// BroadcastValueBet publishes the headline value bet of fixture.
func (h *Hub) BroadcastValueBet(fixture string, bet any) {
	h.Broadcast(Event{Type: EventTypeValueBet, Fixture: fixture, Data: bet})
}

// OnBreakerStateChange is a breaker.Config.OnStateChange hook.
func (h *Hub) OnBreakerStateChange(name string, from, to breaker.State) {
	h.Broadcast(Event{
		Type: EventTypeBreaker,
		Data: BreakerTransition{Provider: name, From: from, To: to},
	})
}

// BroadcastStatus publishes a status snapshot.
func (h *Hub) BroadcastStatus(status any) {
	h.Broadcast(Event{Type: EventTypeStatus, Data: status})
}

// BroadcastError publishes an error raised while doing what (e.g. "watch").
func (h *Hub) BroadcastError(err error, what string) {
	h.Broadcast(Event{
		Type: EventTypeError,
		Data: map[string]string{"error": err.Error(), "context": what},
	})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// ServeWS upgrades the request and registers the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "err", err)
		return
	}

	s := &subscriber{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		events:   make(map[EventType]bool, len(AllEvents)),
		fixtures: make(map[string]bool),
	}
	for _, t := range AllEvents {
		s.events[t] = true
	}

	select {
	case h.register <- s:
	case <-h.done:
		conn.Close()
		return
	}

	go s.writePump()
	go s.readPump()
}

func (s *subscriber) wants(ev Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.events[ev.Type] {
		return false
	}
	if ev.Fixture == "" || len(s.fixtures) == 0 {
		return true
	}
	return s.fixtures[fixtureKey(ev.Fixture)]
}

func (s *subscriber) readPump() {
	defer func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.done:
		}
		s.conn.Close()
	}()

	s.conn.SetReadLimit(readLimit)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.hub.logger.Debug("read error", "err", err)
			}
			return
		}
		s.apply(msg)
	}
}

// apply handles subscribe, unsubscribe, follow and unfollow requests.
// Anything else is ignored.
func (s *subscriber) apply(msg []byte) {
	var req struct {
		Type     string   `json:"type"`
		Events   []string `json:"events"`
		Fixtures []string `json:"fixtures"`
	}
	if err := json.Unmarshal(msg, &req); err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch req.Type {
	case "subscribe":
		for _, e := range req.Events {
			s.events[EventType(e)] = true
		}
	case "unsubscribe":
		for _, e := range req.Events {
			delete(s.events, EventType(e))
		}
	case "follow":
		for _, f := range req.Fixtures {
			s.fixtures[fixtureKey(f)] = true
		}
	case "unfollow":
		for _, f := range req.Fixtures {
			delete(s.fixtures, fixtureKey(f))
		}
	}
}

func (s *subscriber) writePump() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One event per frame.
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ping.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func fixtureKey(f string) string {
	return strings.ToLower(strings.Join(strings.Fields(f), " "))
}

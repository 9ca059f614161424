// Package websocket pushes cache invalidation and job events to connected
// browsers. Clients belong to one clinic and subscribe to topics, which are
// the same keys the read cache uses ("treatments", "commission-reports", ...).
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/woundcare/clinic/internal/platform/db"
)

// Wildcard subscribes a client to every topic of its clinic.
const Wildcard = "*"

const (
	EventInvalidate = "invalidate"
	EventOverdue    = "overdue"
)

// Event is a message pushed to clients.
type Event struct {
	Type       string          `json:"type"`
	Topic      string          `json:"topic"`
	Clinic     string          `json:"clinic"`
	ResourceID string          `json:"resourceId,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is sent by the browser to change its subscriptions.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Publisher is what the rest of the server uses to emit events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type Client struct {
	ID     string
	Clinic string
	Send   chan []byte
	topics map[string]struct{}
}

func NewClient(clinic string, topics ...string) *Client {
	c := &Client{
		ID:     uuid.NewString(),
		Clinic: clinic,
		Send:   make(chan []byte, 256),
		topics: make(map[string]struct{}),
	}
	for _, t := range topics {
		c.topics[t] = struct{}{}
	}
	return c
}

type subKey struct {
	clinic string
	topic  string
}

// Hub tracks clients and their subscriptions.
type Hub struct {
	mu     sync.RWMutex
	subs   map[subKey]map[*Client]struct{}
	all    map[*Client]struct{}
	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		subs:   make(map[subKey]map[*Client]struct{}),
		all:    make(map[*Client]struct{}),
		logger: logger,
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for topic := range client.topics {
		h.addLocked(client, topic)
	}
}

// Unregister drops the client and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for topic := range client.topics {
		h.removeLocked(client, topic)
	}
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		client.topics[topic] = struct{}{}
		h.addLocked(client, topic)
	}
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topics {
		delete(client.topics, topic)
		h.removeLocked(client, topic)
	}
}

func (h *Hub) addLocked(client *Client, topic string) {
	k := subKey{client.Clinic, topic}
	if h.subs[k] == nil {
		h.subs[k] = make(map[*Client]struct{})
	}
	h.subs[k][client] = struct{}{}
}

func (h *Hub) removeLocked(client *Client, topic string) {
	k := subKey{client.Clinic, topic}
	if set, ok := h.subs[k]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.subs, k)
		}
	}
}

func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// Broadcast delivers event to the clinic's subscribers of topic and of the
// wildcard. Slow clients with a full buffer miss the event.
func (h *Hub) Broadcast(clinic, topic string, event Event) {
	event.Clinic = clinic
	event.Topic = topic
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket: marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := make(map[*Client]struct{})
	for c := range h.subs[subKey{clinic, topic}] {
		targets[c] = struct{}{}
	}
	for c := range h.subs[subKey{clinic, Wildcard}] {
		targets[c] = struct{}{}
	}
	for c := range targets {
		select {
		case c.Send <- data:
		default:
			h.logger.Warn().Str("client", c.ID).Str("topic", topic).Msg("websocket: client buffer full, event dropped")
		}
	}
}

// Publish implements Publisher.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Broadcast(event.Clinic, event.Topic, event)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(clinic, topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[subKey{clinic, topic}])
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

// Handler upgrades GET /ws. The clinic comes from the token claim, the
// X-Clinic-ID header or ?clinic=, and initial topics from ?topics=a,b.
type Handler struct {
	hub           *Hub
	defaultClinic string
	upgrader      gorillawebsocket.Upgrader
	logger        zerolog.Logger
}

// NewHandler allows the given origins; an empty list allows any origin.
func NewHandler(hub *Hub, defaultClinic string, allowedOrigins []string, logger zerolog.Logger) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimSpace(o)] = true
	}
	return &Handler{
		hub:           hub,
		defaultClinic: defaultClinic,
		logger:        logger,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

func (wsh *Handler) RegisterRoutes(e *echo.Echo, mw ...echo.MiddlewareFunc) {
	e.GET("/ws", wsh.HandleConnect, mw...)
}

func (wsh *Handler) HandleConnect(c echo.Context) error {
	clinic := db.ExtractClinicID(c, wsh.defaultClinic)
	if !db.ValidClinicID(clinic) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid clinic identifier")
	}
	if !c.IsWebSocket() {
		return echo.NewHTTPError(http.StatusBadRequest, "websocket upgrade required")
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	var topics []string
	if q := c.QueryParam("topics"); q != "" {
		topics = strings.Split(q, ",")
	}
	client := NewClient(clinic, topics...)
	wsh.hub.Register(client)
	wsh.logger.Debug().Str("client", client.ID).Str("clinic", clinic).Msg("websocket connected")

	go wsh.writePump(client, ws)
	go wsh.readPump(client, ws)
	return nil
}

func (wsh *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
	}()

	ws.SetReadLimit(4096)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		wsh.hub.ProcessMessage(client, msg)
	}
}

func (wsh *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

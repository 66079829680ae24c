package feed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/kaifufi/nftspace-settlement-go/events"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// subscriber is one websocket connection served by a Hub.
type subscriber struct {
	conn     *websocket.Conn
	send     chan []byte
	mu       sync.RWMutex
	channels map[string]bool
	once     sync.Once
}

func (s *subscriber) subscribed(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channels[channel]
}

func (s *subscriber) set(channel string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.channels[channel] = true
	} else {
		delete(s.channels, channel)
	}
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// Hub broadcasts published events to websocket subscribers. It implements
// events.Sink so engines can publish to it directly.
type Hub struct {
	logger *logrus.Logger

	mu      sync.RWMutex
	clients map[*subscriber]bool
}

// NewHub creates an empty hub.
func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*subscriber]bool),
	}
}

var _ events.Sink = (*Hub)(nil)

// Publish sends evt to every subscriber of its channel. Subscribers that
// cannot keep up are disconnected.
func (h *Hub) Publish(evt events.Event) {
	channel := string(evt.Type)
	data, err := json.Marshal(EventMessage{Action: ActionEvent, Channel: channel, Event: evt})
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal event")
		return
	}

	h.mu.RLock()
	var slow []*subscriber
	for s := range h.clients {
		if !s.subscribed(channel) {
			continue
		}
		select {
		case s.send <- data:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.logger.WithField("remote", s.conn.RemoteAddr().String()).Warn("Dropping slow feed subscriber")
		h.unregister(s)
	}
}

// Subscribers returns how many connections are subscribed to channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for s := range h.clients {
		if s.subscribed(channel) {
			n++
		}
	}
	return n
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*subscriber]bool)
	h.mu.Unlock()
	for s := range clients {
		s.close()
	}
}

// ServeHTTP upgrades the request to a websocket and serves it until the
// peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	s := &subscriber{
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		channels: make(map[string]bool),
	}
	h.mu.Lock()
	h.clients[s] = true
	h.mu.Unlock()

	go h.writeLoop(s)
	h.readLoop(s)
}

func (h *Hub) unregister(s *subscriber) {
	h.mu.Lock()
	delete(h.clients, s)
	h.mu.Unlock()
	s.close()
}

func (h *Hub) readLoop(s *subscriber) {
	defer h.unregister(s)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.WithError(err).Debug("Feed subscriber read failed")
			}
			return
		}

		var msg SubscribeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(s, ErrorMessage{Action: ActionError, Message: "malformed message"})
			continue
		}
		switch msg.Action {
		case ActionHeartbeat:
			h.reply(s, HeartbeatMessage{Action: ActionHeartbeat})
		case ActionSubscribe, ActionUnsubscribe:
			if !knownChannel(msg.Channel) {
				h.reply(s, ErrorMessage{Action: ActionError, Message: "unknown channel: " + msg.Channel})
				continue
			}
			s.set(msg.Channel, msg.Action == ActionSubscribe)
			h.reply(s, msg)
		default:
			h.reply(s, ErrorMessage{Action: ActionError, Message: "unknown action: " + msg.Action})
		}
	}
}

func (h *Hub) reply(s *subscriber, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[s]; !ok {
		return
	}
	select {
	case s.send <- data:
	default:
	}
}

func (h *Hub) writeLoop(s *subscriber) {
	defer s.conn.Close()
	for data := range s.send {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.WithError(err).Debug("Feed subscriber write failed")
			go h.unregister(s)
			for range s.send {
			}
			return
		}
	}
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Router serves the hub at /ws, metrics at /metrics when given, and a
// liveness probe at /health.
func Router(hub *Hub, metrics http.Handler) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/ws", hub).Methods("GET")
	if metrics != nil {
		router.Handle("/metrics", metrics).Methods("GET")
	}
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	return router
}

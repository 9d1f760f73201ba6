// Package wsgateway streams farm ranking updates to WebSocket clients.
package wsgateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohamedkhairy/feedmix/internal/config"
	"github.com/mohamedkhairy/feedmix/internal/models"
	"github.com/mohamedkhairy/feedmix/pkg/logger"
)

var (
	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feedmix_ws_connections_active",
		Help: "Open ranking update WebSocket connections",
	})

	updatesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedmix_ws_updates_total",
		Help: "Ranking updates delivered to WebSocket clients",
	}, []string{"status"})
)

// UpdateSource yields ranking updates until ctx is done
type UpdateSource interface {
	Updates(ctx context.Context) (<-chan models.ToplistUpdate, error)
}

// Hub manages WebSocket connections and broadcasts ranking updates
type Hub struct {
	config   config.WebSocketConfig
	registry *ConnectionRegistry
	source   UpdateSource
	upgrader websocket.Upgrader
	userID   func(*http.Request) string
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.RWMutex
	running  bool

	statsMu sync.Mutex
	stats   HubStats
}

// HubStats holds statistics about the hub
type HubStats struct {
	ConnectionsTotal  int64          `json:"connections_total"`
	ConnectionsActive int64          `json:"connections_active"`
	UpdatesReceived   int64          `json:"updates_received"`
	MessagesSent      int64          `json:"messages_sent"`
	MessagesDropped   int64          `json:"messages_dropped"`
	LastUpdateTime    time.Time      `json:"last_update_time"`
	Topics            map[string]int `json:"topics"`
}

// HubOption configures a Hub
type HubOption func(*Hub)

// WithUserResolver names the user of an upgrade request, usually from the
// auth middleware's context
func WithUserResolver(fn func(*http.Request) string) HubOption {
	return func(h *Hub) {
		h.userID = fn
	}
}

// NewHub creates a new WebSocket hub
func NewHub(cfg config.WebSocketConfig, source UpdateSource, opts ...HubOption) *Hub {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.ReadTimeout {
		cfg.PingInterval = cfg.ReadTimeout * 9 / 10
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		config:   cfg,
		registry: NewConnectionRegistry(),
		source:   source,
		upgrader: websocket.Upgrader{
			// Origins are already opened up by the CORS middleware
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		userID: func(*http.Request) string { return "default" },
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start subscribes to ranking updates and begins broadcasting
func (h *Hub) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return nil
	}

	updates, err := h.source.Updates(h.ctx)
	if err != nil {
		return err
	}
	h.running = true

	logger.Info("Starting ranking update hub",
		logger.Duration("ping_interval", h.config.PingInterval),
		logger.Int("max_connections", h.config.MaxConnections),
	)

	h.wg.Add(2)
	go h.consumeUpdates(updates)
	go h.monitorConnections()
	return nil
}

// Stop closes every connection and waits for the hub's goroutines
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	logger.Info("Stopping ranking update hub")
	h.cancel()
	h.wg.Wait()
	logger.Info("Ranking update hub stopped")
}

// ServeHTTP upgrades the request and registers the connection
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.config.MaxConnections > 0 && h.registry.Count() >= h.config.MaxConnections {
		logger.Warn("Max connections reached, rejecting new connection",
			logger.Int("max_connections", h.config.MaxConnections),
		)
		http.Error(w, "Max connections reached", http.StatusServiceUnavailable)
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithContext(r.Context()).Warn("Failed to upgrade connection", logger.ErrorField(err))
		return
	}

	h.Register(NewConnection(uuid.New().String(), h.userID(r), wsConn))
}

// Register registers a new connection and starts its pumps
func (h *Hub) Register(conn *Connection) {
	h.registry.Add(conn)
	connectionsActive.Inc()
	h.statsMu.Lock()
	h.stats.ConnectionsTotal++
	h.statsMu.Unlock()

	logger.Info("Connection registered",
		logger.String("connection_id", conn.ID),
		logger.String("user_id", conn.UserID),
		logger.Int("total_connections", h.registry.Count()),
	)

	h.wg.Add(2)
	go h.writePump(conn)
	go h.readPump(conn)
}

// Unregister removes and closes a connection. Repeated calls are no-ops.
func (h *Hub) Unregister(conn *Connection) {
	if !h.registry.Remove(conn.ID) {
		return
	}
	connectionsActive.Dec()
	conn.Close()

	logger.Info("Connection unregistered",
		logger.String("connection_id", conn.ID),
		logger.String("user_id", conn.UserID),
		logger.Int("total_connections", h.registry.Count()),
	)
}

func (h *Hub) consumeUpdates(updates <-chan models.ToplistUpdate) {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case update, ok := <-updates:
			if !ok {
				logger.Warn("Ranking update channel closed")
				return
			}
			h.statsMu.Lock()
			h.stats.UpdatesReceived++
			h.stats.LastUpdateTime = time.Now()
			h.statsMu.Unlock()
			h.broadcast(update)
		}
	}
}

// broadcast sends an update to every interested connection
func (h *Hub) broadcast(update models.ToplistUpdate) {
	sent, dropped := 0, 0

	for _, conn := range h.registry.Recipients(update) {
		if err := conn.SendUpdate(update); err != nil {
			dropped++
			logger.Debug("Failed to queue ranking update",
				logger.ErrorField(err),
				logger.String("connection_id", conn.ID),
			)
			continue
		}
		sent++
	}

	updatesSent.WithLabelValues("sent").Add(float64(sent))
	updatesSent.WithLabelValues("dropped").Add(float64(dropped))
	h.statsMu.Lock()
	h.stats.MessagesSent += int64(sent)
	h.stats.MessagesDropped += int64(dropped)
	h.statsMu.Unlock()

	logger.Debug("Broadcast ranking update",
		logger.Date(update.Date),
		logger.Kind(string(update.Kind)),
		logger.Int("sent", sent),
		logger.Int("dropped", dropped),
	)
}

// writePump pumps queued messages to the WebSocket connection, one frame each
func (h *Hub) writePump(conn *Connection) {
	defer h.wg.Done()
	defer h.Unregister(conn)

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			conn.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return

		case <-conn.Done():
			return

		case message := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps client messages from the WebSocket connection
func (h *Hub) readPump(conn *Connection) {
	defer h.wg.Done()
	defer h.Unregister(conn)

	conn.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.UpdateLastPong()
		conn.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket error",
					logger.ErrorField(err),
					logger.String("connection_id", conn.ID),
				)
			}
			return
		}

		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			conn.SendError("invalid_message", "failed to parse message")
			continue
		}
		if err := h.HandleClientMessage(conn, &clientMsg); err != nil {
			logger.Debug("Failed to handle client message",
				logger.ErrorField(err),
				logger.String("connection_id", conn.ID),
			)
		}
	}
}

// monitorConnections removes connections that stopped answering pings
func (h *Hub) monitorConnections() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.config.ReadTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()
			staleThreshold := h.config.ReadTimeout * 2
			for _, conn := range h.registry.GetAll() {
				if idle := now.Sub(conn.GetLastPong()); idle > staleThreshold {
					logger.Info("Removing stale connection",
						logger.String("connection_id", conn.ID),
						logger.String("user_id", conn.UserID),
						logger.Duration("idle_time", idle),
					)
					h.Unregister(conn)
				}
			}
		}
	}
}

// GetStats returns hub statistics
func (h *Hub) GetStats() HubStats {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	stats := h.stats
	stats.ConnectionsActive = int64(h.registry.Count())
	stats.Topics = h.registry.TopicCounts()
	return stats
}

// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package live

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/danielhkuo/dental-viewer/auth"
	"github.com/danielhkuo/dental-viewer/dental"
	"github.com/danielhkuo/dental-viewer/extension"
	"github.com/danielhkuo/dental-viewer/middleware"
)

// Hub tracks live connections per user. Run must be started before the hub
// serves requests.
type Hub struct {
	tokens   *auth.TokenIssuer
	logger   *zap.Logger
	upgrader websocket.Upgrader

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*Client]bool
	byUser  map[string]map[*Client]bool
}

// NewHub builds a hub that authenticates with tokens. allowedOrigin follows
// the CORS setting: "*" or "" accepts any origin.
func NewHub(tokens *auth.TokenIssuer, allowedOrigin string, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		tokens: tokens,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(allowedOrigin),
		},
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		byUser:     make(map[string]map[*Client]bool),
	}
}

func checkOrigin(allowed string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if allowed == "" || allowed == "*" {
			return true
		}
		origin := r.Header.Get("Origin")
		return origin == "" || origin == allowed
	}
}

// Run owns registration until ctx is cancelled, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			if h.byUser[c.userID] == nil {
				h.byUser[c.userID] = make(map[*Client]bool)
			}
			h.byUser[c.userID][c] = true
			h.mu.Unlock()
			h.logger.Info("live connection opened", zap.String("connID", c.id), zap.String("userID", c.userID))

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				delete(h.byUser[c.userID], c)
				if len(h.byUser[c.userID]) == 0 {
					delete(h.byUser, c.userID)
				}
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("live connection closed", zap.String("connID", c.id), zap.String("userID", c.userID))

		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				c.conn.Close()
			}
			h.mu.Unlock()
			h.logger.Info("live hub stopped")
			return
		}
	}
}

// ConnectionCount is the number of open connections of userID
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}

// Total is the number of open connections
func (h *Hub) Total() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// authenticate reads the access token from the Authorization header or,
// since browsers cannot set headers on a websocket handshake, ?token=
func (h *Hub) authenticate(r *http.Request) (*auth.Claims, error) {
	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return nil, auth.ErrInvalidToken
	}
	return h.tokens.Parse(token)
}

// ServeHTTP handles GET /api/live
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := h.authenticate(r)
	if err != nil {
		msg := "Invalid access token"
		if errors.Is(err, auth.ErrExpiredToken) {
			msg = "Access token expired"
		}
		middleware.ErrorResponse(w, http.StatusUnauthorized, msg)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		id:         uuid.NewString(),
		userID:     claims.UserID(),
		store:      dental.NewMemoryStore(),
		viewerCopy: make(map[string]dental.Measurement),
	}
	c.logger = h.logger.With(zap.String("connID", c.id), zap.String("userID", c.userID))
	c.mode = extension.NewMode(c.logger)

	if err := c.mode.Enter(extension.Host{Measurements: c.store, ToolGroups: toolGroups{c}}); err != nil {
		c.logger.Error("mode entry failed", zap.Error(err))
		conn.Close()
		return
	}
	c.unsubscribe = c.store.Subscribe(c.forward)

	select {
	case h.register <- c:
	case <-h.done:
		c.mode.Exit()
		conn.Close()
		return
	}

	c.queue(Message{Type: TypeState, Code: CodeSuccess, Data: c.state()})

	go c.writePump()
	go c.readPump()
}

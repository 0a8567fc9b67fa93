// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package live

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/danielhkuo/dental-viewer/dental"
	"github.com/danielhkuo/dental-viewer/extension"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

var ErrSendBufferFull = errors.New("send buffer full")

// Client is one viewer connection. It owns a measurement mirror and a dental
// mode; mu serializes everything that touches them.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	id     string
	userID string
	logger *zap.Logger

	mu          sync.Mutex
	store       *dental.MemoryStore
	mode        *extension.Mode
	unsubscribe func()
	// last version of each measurement the viewer is known to hold
	viewerCopy map[string]dental.Measurement
}

// toolGroups routes the mode's tool group calls back to the viewer
type toolGroups struct {
	c *Client
}

func (t toolGroups) CreateToolGroup(id string, tools []string) error {
	t.c.logger.Debug("tool group ready", zap.String("toolGroupID", id), zap.Strings("tools", tools))
	return nil
}

func (t toolGroups) SetActiveTool(toolGroupID, toolName string) error {
	return t.c.queue(Message{
		Type: TypeActivateTool,
		Code: CodeSuccess,
		Data: ActivateTool{ToolGroupID: toolGroupID, ToolName: toolName},
	})
}

// queue never blocks; a viewer that stops reading loses messages
func (c *Client) queue(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	default:
		c.logger.Warn("dropping live message", zap.String("type", msg.Type))
		return ErrSendBufferFull
	}
}

func sameMeasurement(a, b dental.Measurement) bool {
	return a.Label == b.Label && a.Metadata.Equal(b.Metadata)
}

// forward pushes server-side changes to the viewer. It runs inside store
// notifications, so c.mu is already held.
func (c *Client) forward(ev dental.Event) {
	if ev.Type != dental.EventUpdated {
		return
	}
	m := ev.Measurement
	// A nested update already replaced this version
	if current, ok := c.store.Get(m.UID); !ok || !sameMeasurement(current, m) {
		return
	}
	if seen, ok := c.viewerCopy[m.UID]; ok && sameMeasurement(seen, m) {
		return
	}
	c.viewerCopy[m.UID] = m
	c.queue(Message{Type: TypeMeasurementUpdate, Code: CodeSuccess, Data: m})
}

func (c *Client) state() State {
	st := c.mode.State()
	return State{
		Active:       st.Active,
		Theme:        st.Theme,
		PresetID:     st.PresetID,
		Tooth:        st.Tooth,
		Measurements: len(c.store.Measurements()),
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.mode.Exit()
}

func (c *Client) readPump() {
	defer func() {
		c.close()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("unexpected close", zap.Error(err))
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.queue(errorMessage(ErrInvalidData, "message is not JSON"))
			continue
		}
		c.mu.Lock()
		c.handle(msg)
		c.mu.Unlock()
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.hub.done:
			return
		}
	}
}

// handle dispatches one inbound message; called with c.mu held
func (c *Client) handle(msg inbound) {
	switch msg.Type {
	case TypeHeartbeat:
		c.queue(Message{Type: TypeHeartbeatResponse, Code: CodeSuccess, Data: "pong"})

	case TypeMeasurementAdded, TypeMeasurementUpdated:
		var m dental.Measurement
		if err := json.Unmarshal(msg.Data, &m); err != nil || m.UID == "" {
			c.queue(errorMessage(ErrInvalidData, "measurement with uid required"))
			return
		}
		c.viewerCopy[m.UID] = m.Clone()
		var err error
		if msg.Type == TypeMeasurementAdded {
			err = c.store.Add(m)
		} else {
			err = c.store.Update(m)
		}
		if errors.Is(err, dental.ErrMeasurementNotFound) {
			delete(c.viewerCopy, m.UID)
		}
		c.measurementError(m.UID, err)

	case TypeMeasurementRemoved:
		var p removePayload
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.UID == "" {
			c.queue(errorMessage(ErrInvalidData, "uid required"))
			return
		}
		delete(c.viewerCopy, p.UID)
		c.measurementError(p.UID, c.store.Remove(p.UID))

	case TypeMeasurementsCleared:
		c.store.Clear()
		c.viewerCopy = make(map[string]dental.Measurement)

	case TypeSelectPreset:
		var p presetPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.queue(errorMessage(ErrInvalidData, "presetId required"))
			return
		}
		c.command(extension.CommandSelectPreset, map[string]any{"presetId": p.PresetID})

	case TypeSetTooth:
		var p toothPayload
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &p); err != nil {
				c.queue(errorMessage(ErrInvalidData, "tooth must be an object"))
				return
			}
		}
		if p.System == "" {
			c.command(extension.CommandClearActiveTooth, nil)
			return
		}
		c.command(extension.CommandSetActiveTooth, map[string]any{"system": p.System, "value": p.Value})

	case TypeToggleTheme:
		c.command(extension.CommandToggleTheme, nil)

	case TypeEnhanceExisting:
		out, err := c.mode.Commands().Run(extension.CommandEnhanceExisting, nil)
		if err != nil {
			c.queue(errorMessage(ErrInternal, err.Error()))
			return
		}
		st := c.state()
		if counts, ok := out.(map[string]int); ok {
			n := counts["updated"]
			st.Enhanced = &n
		}
		c.queue(Message{Type: TypeState, Code: CodeSuccess, Data: st})

	case TypeExport:
		rows, err := c.mode.Commands().Run(extension.CommandExport, nil)
		if err != nil {
			c.queue(errorMessage(ErrInternal, err.Error()))
			return
		}
		c.queue(Message{Type: TypeExportResult, Code: CodeSuccess, Data: rows})

	default:
		c.queue(errorMessage(ErrUnknownType, msg.Type))
	}
}

// command runs a mode command and answers with the new state
func (c *Client) command(name string, args map[string]any) {
	if _, err := c.mode.Commands().Run(name, args); err != nil {
		e := ErrInternal
		if errors.Is(err, dental.ErrInvalidTooth) || errors.Is(err, dental.ErrUnknownSystem) {
			e = ErrInvalidTooth
		}
		c.queue(errorMessage(e, err.Error()))
		return
	}
	c.queue(Message{Type: TypeState, Code: CodeSuccess, Data: c.state()})
}

func (c *Client) measurementError(uid string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, dental.ErrMeasurementNotFound):
		c.queue(errorMessage(ErrMeasurementNotFound, uid))
	case errors.Is(err, dental.ErrMeasurementExists):
		c.queue(errorMessage(ErrMeasurementExists, uid))
	default:
		c.logger.Error("measurement store failed", zap.String("uid", uid), zap.Error(err))
		c.queue(errorMessage(ErrInternal, ""))
	}
}

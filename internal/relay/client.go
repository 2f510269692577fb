package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mossy-p/webrtc-broadcast/internal/models"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

type memberRole int

const (
	unregistered memberRole = iota
	broadcasterRole
	viewerRole
)

func (r memberRole) String() string {
	switch r {
	case broadcasterRole:
		return "broadcaster"
	case viewerRole:
		return "viewer"
	default:
		return "unregistered"
	}
}

// Client is one websocket connection to the hub.
type Client struct {
	ID string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}

	// guarded by hub.mu
	name string
	room string
	role memberRole

	log zerolog.Logger
}

func (c *Client) participant() models.Participant {
	return models.Participant{ID: c.ID, Name: c.name, Room: c.room}
}

// sendEvent queues an event for the write pump without blocking.
func (c *Client) sendEvent(name string, args ...any) {
	ev, err := models.NewEvent(name, args...)
	if err != nil {
		c.log.Error().Err(err).Str("event", name).Msg("Failed to encode event")
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		c.log.Error().Err(err).Str("event", name).Msg("Failed to encode event")
		return
	}

	select {
	case c.send <- data:
	default:
		c.log.Warn().Str("event", name).Msg("Send buffer full, dropping event")
	}
}

// close makes the write pump send a close frame and hang up.
func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}

		var ev models.Event
		if err := json.Unmarshal(message, &ev); err != nil {
			c.log.Warn().Err(err).Msg("Failed to parse message")
			c.sendEvent(models.EventError, "malformed event")
			continue
		}

		if err := c.hub.handle(c, ev); err != nil {
			c.log.Warn().Err(err).Str("event", ev.EventName).Msg("Rejected event")
			c.sendEvent(models.EventError, err.Error())
		}
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
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Warn().Err(err).Msg("Failed to write message")
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

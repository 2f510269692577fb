// Package relay routes signaling between the broadcaster of a room and its
// viewers. Every connection gets a uuid, and offers, answers and candidates
// only ever reach the peer they are addressed to.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mossy-p/webrtc-broadcast/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const directoryTimeout = 5 * time.Second

type room struct {
	name        string
	broadcaster *Client
	viewers     map[string]*Client
}

func (r *room) empty() bool {
	return r.broadcaster == nil && len(r.viewers) == 0
}

// Hub tracks connections and the rooms they registered in.
type Hub struct {
	dir Directory

	mu      sync.Mutex
	rooms   map[string]*room
	clients map[string]*Client

	log zerolog.Logger
}

func NewHub(dir Directory) *Hub {
	return &Hub{
		dir:     dir,
		rooms:   make(map[string]*room),
		clients: make(map[string]*Client),
		log:     log.With().Str("component", "relay").Logger(),
	}
}

// Serve takes over conn and starts its read and write pumps.
func (h *Hub) Serve(conn *websocket.Conn) *Client {
	c := &Client{
		ID:   uuid.New().String(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	c.log = h.log.With().Str("peer_id", c.ID).Logger()

	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	c.log.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("Peer connected")

	go c.writePump()
	go c.readPump()
	return c
}

func (h *Hub) handle(c *Client, ev models.Event) error {
	switch ev.EventName {
	case models.EventRegisterBroadcaster:
		return h.registerBroadcaster(c, ev.Arguments)
	case models.EventRegisterViewer:
		return h.registerViewer(c, ev.Arguments)
	case models.EventOffer, models.EventAnswer, models.EventCandidate:
		return h.forward(c, ev.EventName, ev.Arguments)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.EventName)
	}
}

func (h *Hub) registerBroadcaster(c *Client, args []json.RawMessage) error {
	var name string
	if len(args) < 1 || json.Unmarshal(args[0], &name) != nil || strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: register as broadcaster needs a room", ErrBadArguments)
	}

	h.mu.Lock()
	if c.role != unregistered {
		h.mu.Unlock()
		return ErrAlreadyRegistered
	}
	r := h.roomLocked(name)
	if r.broadcaster != nil {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRoomTaken, name)
	}

	c.role = broadcasterRole
	c.room = name
	r.broadcaster = c
	self := c.participant()

	// viewers that arrived first are announced now
	for _, v := range r.viewers {
		c.sendEvent(models.EventNewViewer, v.participant())
	}
	waiting := len(r.viewers)
	h.mu.Unlock()

	c.log.Info().Str("room", name).Int("waiting_viewers", waiting).Msg("Broadcaster registered")
	h.updateDirectory(func(ctx context.Context) error { return h.dir.SetBroadcaster(ctx, name, self) })
	return nil
}

func (h *Hub) registerViewer(c *Client, args []json.RawMessage) error {
	var user models.Participant
	if len(args) < 1 || json.Unmarshal(args[0], &user) != nil || strings.TrimSpace(user.Room) == "" {
		return fmt.Errorf("%w: register as viewer needs {room, name}", ErrBadArguments)
	}

	h.mu.Lock()
	if c.role != unregistered {
		h.mu.Unlock()
		return ErrAlreadyRegistered
	}
	r := h.roomLocked(user.Room)

	c.role = viewerRole
	c.room = user.Room
	c.name = user.Name
	r.viewers[c.ID] = c
	self := c.participant()

	if r.broadcaster != nil {
		r.broadcaster.sendEvent(models.EventNewViewer, self)
	}
	h.mu.Unlock()

	c.log.Info().Str("room", user.Room).Str("name", user.Name).Msg("Viewer registered")
	h.updateDirectory(func(ctx context.Context) error { return h.dir.AddViewer(ctx, user.Room, self) })
	return nil
}

// forward delivers offer, answer and candidate events to the addressed peer,
// replacing the target id in the first argument with the sender's id.
func (h *Hub) forward(from *Client, name string, args []json.RawMessage) error {
	var target string
	if len(args) < 2 || json.Unmarshal(args[0], &target) != nil {
		return fmt.Errorf("%w: %s needs a peer id and a payload", ErrBadArguments, name)
	}

	h.mu.Lock()
	to, payload, named, err := h.routeLocked(from, name, target, args[1])
	if err != nil {
		h.mu.Unlock()
		return err
	}
	to.sendEvent(name, from.ID, payload)
	self := from.participant()
	h.mu.Unlock()

	from.log.Debug().Str("event", name).Str("to", to.ID).Msg("Forwarded")
	if named {
		h.updateDirectory(func(ctx context.Context) error { return h.dir.SetBroadcaster(ctx, self.Room, self) })
	}
	return nil
}

// routeLocked resolves the target of a forwarded event. Offers get the
// sender's id and room stamped on their broadcaster; named reports whether
// the offer taught the hub the broadcaster's name.
func (h *Hub) routeLocked(from *Client, name, target string, payload json.RawMessage) (*Client, json.RawMessage, bool, error) {
	if from.role == unregistered {
		return nil, nil, false, ErrNotRegistered
	}
	to, ok := h.clients[target]
	if !ok || to.role == unregistered || to.room != from.room {
		return nil, nil, false, fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}
	if (from.role == broadcasterRole) == (to.role == broadcasterRole) {
		return nil, nil, false, ErrBadRoute
	}

	named := false
	switch name {
	case models.EventOffer:
		if from.role != broadcasterRole {
			return nil, nil, false, ErrBadRoute
		}
		var offer models.OfferPayload
		if err := json.Unmarshal(payload, &offer); err != nil {
			return nil, nil, false, fmt.Errorf("%w: offer: %w", ErrBadArguments, err)
		}
		if from.name == "" && offer.Broadcaster.Name != "" {
			from.name = offer.Broadcaster.Name
			named = true
		}
		offer.Broadcaster.ID = from.ID
		offer.Broadcaster.Room = from.room
		stamped, err := json.Marshal(offer)
		if err != nil {
			return nil, nil, false, err
		}
		payload = stamped
	case models.EventAnswer:
		if from.role != viewerRole {
			return nil, nil, false, ErrBadRoute
		}
	}
	return to, payload, named, nil
}

// leave drops c from its room and tells the counterpart peers.
func (h *Hub) leave(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)

	role, roomName := c.role, c.room
	c.role = unregistered
	if r, ok := h.rooms[roomName]; ok {
		switch role {
		case broadcasterRole:
			if r.broadcaster == c {
				r.broadcaster = nil
				for _, v := range r.viewers {
					v.sendEvent(models.EventBroadcasterLeft, c.ID)
				}
			}
		case viewerRole:
			delete(r.viewers, c.ID)
			if r.broadcaster != nil {
				r.broadcaster.sendEvent(models.EventViewerLeft, c.ID)
			}
		}
		if r.empty() {
			delete(h.rooms, roomName)
		}
	}
	h.mu.Unlock()

	c.log.Info().Str("room", roomName).Stringer("role", role).Msg("Peer disconnected")

	switch role {
	case broadcasterRole:
		h.updateDirectory(func(ctx context.Context) error { return h.dir.RemoveBroadcaster(ctx, roomName, c.ID) })
	case viewerRole:
		h.updateDirectory(func(ctx context.Context) error { return h.dir.RemoveViewer(ctx, roomName, c.ID) })
	}
}

// Room reports the presence recorded for name.
func (h *Hub) Room(ctx context.Context, name string) (models.RoomInfo, error) {
	return h.dir.Room(ctx, name)
}

// CloseRoom disconnects every member of name and returns how many there
// were.
func (h *Hub) CloseRoom(ctx context.Context, name string) (int, error) {
	h.mu.Lock()
	r, ok := h.rooms[name]
	if !ok {
		h.mu.Unlock()
		return 0, ErrRoomNotFound
	}
	delete(h.rooms, name)

	members := make([]*Client, 0, len(r.viewers)+1)
	if r.broadcaster != nil {
		members = append(members, r.broadcaster)
	}
	for _, v := range r.viewers {
		members = append(members, v)
	}
	for _, m := range members {
		m.role = unregistered
	}
	h.mu.Unlock()

	for _, m := range members {
		m.close()
	}

	h.log.Info().Str("room", name).Int("members", len(members)).Msg("Room closed")
	if err := h.dir.DeleteRoom(ctx, name); err != nil {
		return len(members), fmt.Errorf("delete room %s from directory: %w", name, err)
	}
	return len(members), nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) roomLocked(name string) *room {
	r, ok := h.rooms[name]
	if !ok {
		r = &room{name: name, viewers: make(map[string]*Client)}
		h.rooms[name] = r
	}
	return r
}

func (h *Hub) updateDirectory(update func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), directoryTimeout)
	defer cancel()
	if err := update(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Failed to update room directory")
	}
}

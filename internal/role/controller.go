// Package role drives one local participant through a room as either the
// broadcaster or a viewer, turning relay events into peer sessions.
package role

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mossy-p/webrtc-broadcast/internal/models"
	"github.com/mossy-p/webrtc-broadcast/internal/peer"
	"github.com/mossy-p/webrtc-broadcast/internal/transport"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EventTransport is the part of *transport.Transport the controller uses.
type EventTransport interface {
	Emit(eventName string, args ...any) error
	On(eventName string, h transport.Handler)
}

// MediaSource supplies the local tracks a broadcaster shares with every
// viewer. The tracks are attached to each session and never modified.
type MediaSource interface {
	Tracks(ctx context.Context) ([]webrtc.TrackLocal, error)
}

// TrackSink consumes media received from the broadcaster.
type TrackSink interface {
	HandleTrack(track *webrtc.TrackRemote)
}

// Mode is what the local participant is doing in its room.
type Mode int

const (
	Idle Mode = iota
	Broadcaster
	Viewer
	Left
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Broadcaster:
		return "broadcaster"
	case Viewer:
		return "viewer"
	case Left:
		return "left"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

type Controller struct {
	transport EventTransport
	factory   peer.EndpointFactory
	sink      TrackSink
	registry  *peer.Registry

	mu     sync.Mutex
	mode   Mode
	self   models.Participant
	tracks []webrtc.TrackLocal

	log zerolog.Logger
}

// New creates a controller and registers its event handlers on t. Sessions
// get their endpoints from factory and give up if they are not stable
// within timeout. Received tracks go to sink, which may be nil for a
// broadcaster-only process.
func New(t EventTransport, factory peer.EndpointFactory, sink TrackSink, timeout time.Duration) *Controller {
	c := &Controller{
		transport: t,
		factory:   factory,
		sink:      sink,
		log:       log.With().Str("component", "role").Logger(),
	}
	c.registry = peer.NewRegistry(emitter{c}, timeout)

	t.On(models.EventNewViewer, c.handleNewViewer)
	t.On(models.EventOffer, c.handleOffer)
	t.On(models.EventAnswer, c.handleAnswer)
	t.On(models.EventCandidate, c.handleCandidate)
	t.On(models.EventViewerLeft, c.handlePeerLeft)
	t.On(models.EventBroadcasterLeft, c.handlePeerLeft)
	t.On(models.EventError, c.handleRelayError)
	return c
}

// Broadcast acquires the local media from source and registers as the
// broadcaster of room. Viewers are connected as the relay announces them.
func (c *Controller) Broadcast(ctx context.Context, room, name string, source MediaSource) error {
	self, err := participant(room, name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != Idle {
		return fmt.Errorf("%w as %s", ErrAlreadyRegistered, c.mode)
	}

	tracks, err := source.Tracks(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMediaAcquisition, err)
	}

	c.mode = Broadcaster
	c.self = self
	c.tracks = tracks

	c.log.Info().Str("room", room).Str("name", name).Int("tracks", len(tracks)).Msg("Registering as broadcaster")
	return c.transport.Emit(models.EventRegisterBroadcaster, room)
}

// View registers as a viewer of room and waits for the broadcaster's offer.
func (c *Controller) View(ctx context.Context, room, name string) error {
	self, err := participant(room, name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != Idle {
		return fmt.Errorf("%w as %s", ErrAlreadyRegistered, c.mode)
	}

	c.mode = Viewer
	c.self = self

	c.log.Info().Str("room", room).Str("name", name).Msg("Registering as viewer")
	return c.transport.Emit(models.EventRegisterViewer, self)
}

// Leave closes every peer session. Events arriving afterwards are ignored.
func (c *Controller) Leave(ctx context.Context) error {
	c.mu.Lock()
	c.mode = Left
	c.mu.Unlock()

	c.log.Info().Int("sessions", c.registry.Len()).Msg("Leaving room")
	return c.registry.Close(ctx)
}

func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Session returns the live session with peerID.
func (c *Controller) Session(peerID string) (*peer.Session, bool) {
	return c.registry.Lookup(peerID)
}

// Peers lists the peers with a live session.
func (c *Controller) Peers() []string {
	return c.registry.Peers()
}

// Validate checks a join request locally, before anything is sent.
func Validate(room, name string) error {
	_, err := participant(room, name)
	return err
}

func participant(room, name string) (models.Participant, error) {
	room, name = strings.TrimSpace(room), strings.TrimSpace(name)
	if room == "" || name == "" {
		return models.Participant{}, ErrInvalidJoin
	}
	return models.Participant{Name: name, Room: room}, nil
}

func (c *Controller) snapshot() (Mode, models.Participant, []webrtc.TrackLocal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode, c.self, c.tracks
}

func (c *Controller) handleNewViewer(args transport.Args) error {
	var viewer models.Participant
	if err := args.Decode(&viewer); err != nil {
		return err
	}
	if viewer.ID == "" {
		return fmt.Errorf("new viewer %q: %w", viewer.Name, ErrMissingPeerID)
	}

	mode, _, tracks := c.snapshot()
	if mode != Broadcaster {
		c.log.Warn().Str("peer_id", viewer.ID).Msg("Ignoring new viewer outside broadcaster mode")
		return nil
	}

	endpoint, err := c.factory.NewEndpoint()
	if err != nil {
		return fmt.Errorf("create endpoint for %s: %w", viewer.ID, err)
	}
	for _, track := range tracks {
		if err := endpoint.AddTrack(track); err != nil {
			endpoint.Close()
			return fmt.Errorf("attach track %s for %s: %w", track.ID(), viewer.ID, err)
		}
	}

	c.log.Info().Str("peer_id", viewer.ID).Str("viewer", viewer.Name).Msg("New viewer")
	return ignoreClosed(c.registry.Create(viewer.ID, peer.InitiatingOfferer, endpoint).Offer())
}

func (c *Controller) handleOffer(args transport.Args) error {
	var (
		peerID  string
		payload models.OfferPayload
	)
	if err := args.Decode(&peerID, &payload); err != nil {
		return err
	}
	if peerID == "" {
		peerID = payload.Broadcaster.ID
	}
	if peerID == "" {
		return fmt.Errorf("offer: %w", ErrMissingPeerID)
	}

	if mode, _, _ := c.snapshot(); mode != Viewer {
		c.log.Warn().Str("peer_id", peerID).Msg("Ignoring offer outside viewer mode")
		return nil
	}

	endpoint, err := c.factory.NewEndpoint()
	if err != nil {
		return fmt.Errorf("create endpoint for %s: %w", peerID, err)
	}
	if c.sink != nil {
		endpoint.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			c.sink.HandleTrack(track)
		})
	}

	c.log.Info().Str("peer_id", peerID).Str("broadcaster", payload.Broadcaster.Name).Msg("Offer received")
	return ignoreClosed(c.registry.Create(peerID, peer.RespondingAnswerer, endpoint).Answer(payload.SDP))
}

func (c *Controller) handleAnswer(args transport.Args) error {
	var (
		peerID  string
		payload models.AnswerPayload
	)
	if err := args.Decode(&peerID, &payload); err != nil {
		return err
	}

	s, ok := c.registry.Lookup(peerID)
	if !ok {
		c.log.Debug().Str("peer_id", peerID).Msg("Answer for unknown peer")
		return nil
	}
	return s.AcceptAnswer(payload.SDP)
}

func (c *Controller) handleCandidate(args transport.Args) error {
	var (
		peerID  string
		payload models.CandidatePayload
	)
	if err := args.Decode(&peerID, &payload); err != nil {
		return err
	}

	s, ok := c.registry.Lookup(peerID)
	if !ok {
		c.log.Debug().Str("peer_id", peerID).Msg("Candidate for unknown peer")
		return nil
	}
	return ignoreClosed(s.AddRemoteCandidate(payload.ICECandidateInit()))
}

// ignoreClosed drops ErrSessionClosed: the session was torn down by Leave
// or a peer departure while the event was in flight.
func ignoreClosed(err error) error {
	if errors.Is(err, peer.ErrSessionClosed) {
		return nil
	}
	return err
}

func (c *Controller) handlePeerLeft(args transport.Args) error {
	var peerID string
	if err := args.Decode(&peerID); err != nil {
		return err
	}
	if c.registry.Discard(peerID, ErrPeerLeft) {
		c.log.Info().Str("peer_id", peerID).Msg("Peer left")
	}
	return nil
}

func (c *Controller) handleRelayError(args transport.Args) error {
	var msg string
	if err := args.Decode(&msg); err != nil {
		return err
	}
	c.log.Error().Str("relay_error", msg).Msg("Relay rejected a request")
	return nil
}

// emitter puts a session's outbound signaling on the wire.
type emitter struct {
	c *Controller
}

func (e emitter) SendOffer(peerID string, offer webrtc.SessionDescription) error {
	_, self, _ := e.c.snapshot()
	return e.c.transport.Emit(models.EventOffer, peerID, models.OfferPayload{
		Type:        models.EventOffer,
		SDP:         offer,
		Broadcaster: self,
	})
}

func (e emitter) SendAnswer(peerID string, answer webrtc.SessionDescription) error {
	_, self, _ := e.c.snapshot()
	return e.c.transport.Emit(models.EventAnswer, peerID, models.AnswerPayload{
		Type: models.EventAnswer,
		SDP:  answer,
		Room: self.Room,
	})
}

func (e emitter) SendCandidate(peerID string, candidate webrtc.ICECandidateInit) error {
	return e.c.transport.Emit(models.EventCandidate, peerID, models.NewCandidatePayload(candidate))
}

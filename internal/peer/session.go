package peer

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// State is the negotiation state of one session.
type State int

const (
	Created State = iota
	LocalDescriptionSet
	RemoteDescriptionSet
	Stable
	Closed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case LocalDescriptionSet:
		return "local-description-set"
	case RemoteDescriptionSet:
		return "remote-description-set"
	case Stable:
		return "stable"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Role is fixed for the lifetime of a session.
type Role int

const (
	InitiatingOfferer Role = iota
	RespondingAnswerer
)

func (r Role) String() string {
	if r == InitiatingOfferer {
		return "offerer"
	}
	return "answerer"
}

// Session negotiates one direct connection with one remote peer.
//
// Remote candidates that arrive before the remote description are buffered
// and replayed in arrival order once it is set. Local candidates produced
// before the offer or answer went out are held back and flushed right after
// it, so the remote side always sees the description first.
type Session struct {
	peerID   string
	role     Role
	endpoint MediaEndpoint
	signaler Signaler

	mu        sync.Mutex
	state     State
	remoteSet bool
	signaled  bool
	pending   []webrtc.ICECandidateInit
	outbox    []webrtc.ICECandidateInit
	timer     *time.Timer
	err       error

	onClose func(*Session, error)
	done    chan struct{}

	log zerolog.Logger
}

func newSession(peerID string, role Role, endpoint MediaEndpoint, signaler Signaler, timeout time.Duration, onClose func(*Session, error)) *Session {
	s := &Session{
		peerID:   peerID,
		role:     role,
		endpoint: endpoint,
		signaler: signaler,
		state:    Created,
		onClose:  onClose,
		done:     make(chan struct{}),
		log: log.With().
			Str("peer_id", peerID).
			Stringer("role", role).
			Logger(),
	}

	endpoint.OnICECandidate(s.handleLocalCandidate)
	endpoint.OnConnectionStateChange(s.handleConnectionState)

	if timeout > 0 {
		s.timer = time.AfterFunc(timeout, s.expire)
	}
	return s
}

func (s *Session) PeerID() string { return s.peerID }

func (s *Session) Role() Role { return s.role }

func (s *Session) Endpoint() MediaEndpoint { return s.endpoint }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PendingCandidates returns how many remote candidates are buffered.
func (s *Session) PendingCandidates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Done is closed when the session reaches Closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns why the session closed, or nil while it is open.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Offer runs the offerer's first half: create and apply a local offer and
// send it to the peer.
func (s *Session) Offer() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expectLocked(InitiatingOfferer, Created); err != nil {
		return err
	}

	offer, err := s.endpoint.CreateOffer()
	if err != nil {
		return s.failLocked("create offer", err)
	}
	if err := s.endpoint.SetLocalDescription(offer); err != nil {
		return s.failLocked("set local description", err)
	}
	s.setStateLocked(LocalDescriptionSet)

	if err := s.signaler.SendOffer(s.peerID, s.localDescriptionLocked(offer)); err != nil {
		return s.failLocked("send offer", err)
	}
	s.flushLocked()
	return nil
}

// AcceptAnswer completes an offerer session with the peer's answer.
func (s *Session) AcceptAnswer(answer webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expectLocked(InitiatingOfferer, LocalDescriptionSet); err != nil {
		return err
	}

	if err := s.endpoint.SetRemoteDescription(answer); err != nil {
		return s.failLocked("set remote description", err)
	}
	s.remoteSet = true
	s.setStateLocked(RemoteDescriptionSet)
	s.replayLocked()
	s.stableLocked()
	return nil
}

// Answer runs the whole answerer side for a received offer.
func (s *Session) Answer(offer webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expectLocked(RespondingAnswerer, Created); err != nil {
		return err
	}

	if err := s.endpoint.SetRemoteDescription(offer); err != nil {
		return s.failLocked("set remote description", err)
	}
	s.remoteSet = true
	s.setStateLocked(RemoteDescriptionSet)
	s.replayLocked()

	answer, err := s.endpoint.CreateAnswer()
	if err != nil {
		return s.failLocked("create answer", err)
	}
	if err := s.endpoint.SetLocalDescription(answer); err != nil {
		return s.failLocked("set local description", err)
	}
	s.setStateLocked(LocalDescriptionSet)

	if err := s.signaler.SendAnswer(s.peerID, s.localDescriptionLocked(answer)); err != nil {
		return s.failLocked("send answer", err)
	}
	s.flushLocked()
	s.stableLocked()
	return nil
}

// AddRemoteCandidate applies c, or buffers it until the remote description
// is set.
func (s *Session) AddRemoteCandidate(c webrtc.ICECandidateInit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Closed {
		return ErrSessionClosed
	}
	if !s.remoteSet {
		s.pending = append(s.pending, c)
		s.log.Debug().Int("pending", len(s.pending)).Msg("Buffered early remote candidate")
		return nil
	}
	if err := s.endpoint.AddICECandidate(c); err != nil {
		return fmt.Errorf("add candidate for %s: %w", s.peerID, err)
	}
	return nil
}

// Close releases the endpoint and moves the session to Closed. Only the
// first call has any effect.
func (s *Session) Close(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(reason)
}

func (s *Session) expectLocked(role Role, state State) error {
	if s.state == Closed {
		return ErrSessionClosed
	}
	if s.role != role || s.state != state {
		return fmt.Errorf("%w: %s session for %s is %s", ErrInvalidState, s.role, s.peerID, s.state)
	}
	return nil
}

func (s *Session) localDescriptionLocked(fallback webrtc.SessionDescription) webrtc.SessionDescription {
	if desc := s.endpoint.LocalDescription(); desc != nil {
		return *desc
	}
	return fallback
}

func (s *Session) setStateLocked(state State) {
	s.log.Debug().Stringer("from", s.state).Stringer("to", state).Msg("Negotiation state changed")
	s.state = state
}

func (s *Session) stableLocked() {
	s.setStateLocked(Stable)
	if s.timer != nil {
		s.timer.Stop()
	}
	s.log.Info().Msg("Negotiation complete")
}

func (s *Session) replayLocked() {
	if len(s.pending) == 0 {
		return
	}
	s.log.Debug().Int("count", len(s.pending)).Msg("Replaying buffered remote candidates")
	for _, c := range s.pending {
		if err := s.endpoint.AddICECandidate(c); err != nil {
			s.log.Warn().Err(err).Str("candidate", c.Candidate).Msg("Failed to apply buffered candidate")
		}
	}
	s.pending = nil
}

func (s *Session) flushLocked() {
	s.signaled = true
	for _, c := range s.outbox {
		if err := s.signaler.SendCandidate(s.peerID, c); err != nil {
			s.log.Error().Err(err).Msg("Failed to send candidate")
		}
	}
	s.outbox = nil
}

func (s *Session) failLocked(step string, err error) error {
	nerr := &NegotiationError{PeerID: s.peerID, Step: step, Err: err}
	s.log.Error().Err(err).Str("step", step).Msg("Negotiation failed")
	s.closeLocked(nerr)
	return nerr
}

func (s *Session) closeLocked(reason error) {
	if s.state == Closed {
		return
	}
	s.setStateLocked(Closed)
	s.err = reason
	s.pending = nil
	s.outbox = nil
	if s.timer != nil {
		s.timer.Stop()
	}
	if err := s.endpoint.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to close endpoint")
	}
	close(s.done)
	s.log.Info().AnErr("reason", reason).Msg("Session closed")

	if s.onClose != nil {
		s.onClose(s, reason)
	}
}

func (s *Session) handleLocalCandidate(c webrtc.ICECandidateInit) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Closed {
		return
	}
	if !s.signaled {
		s.outbox = append(s.outbox, c)
		return
	}
	if err := s.signaler.SendCandidate(s.peerID, c); err != nil {
		s.log.Error().Err(err).Msg("Failed to send candidate")
	}
}

func (s *Session) handleConnectionState(state webrtc.PeerConnectionState) {
	s.log.Info().Stringer("state", state).Msg("Connection state changed")

	switch state {
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		s.Close(fmt.Errorf("%w: %s", ErrConnectionClosed, state))
	}
}

func (s *Session) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Stable || s.state == Closed {
		return
	}
	s.log.Warn().Stringer("state", s.state).Msg("Negotiation did not complete in time")
	s.closeLocked(&NegotiationError{PeerID: s.peerID, Step: "timeout", Err: ErrNegotiationTimeout})
}

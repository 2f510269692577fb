package peer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Registry owns the live sessions, at most one per peer id.
type Registry struct {
	signaler Signaler
	timeout  time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewRegistry creates an empty registry. Sessions it creates send their
// signaling through signaler and close themselves if they are not stable
// within timeout; a zero timeout disables that.
func NewRegistry(signaler Signaler, timeout time.Duration) *Registry {
	return &Registry{
		signaler: signaler,
		timeout:  timeout,
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session for peerID that owns endpoint. A live
// session for the same peer is replaced and closed. Once the registry is
// closed the session comes back already Closed with ErrRegistryClosed and
// its endpoint released.
func (r *Registry) Create(peerID string, role Role, endpoint MediaEndpoint) *Session {
	s := newSession(peerID, role, endpoint, r.signaler, r.timeout, r.remove)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		log.Warn().Str("peer_id", peerID).Msg("Refusing session on closed registry")
		s.Close(ErrRegistryClosed)
		return s
	}
	old := r.sessions[peerID]
	r.sessions[peerID] = s
	r.mu.Unlock()

	if old != nil {
		log.Info().Str("peer_id", peerID).Msg("Replacing existing session")
		old.Close(ErrReplaced)
	}
	return s
}

// Lookup returns the live session for peerID.
func (r *Registry) Lookup(peerID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[peerID]
	return s, ok
}

// Discard closes the session registered for peerID, if any.
func (r *Registry) Discard(peerID string, reason error) bool {
	s, ok := r.Lookup(peerID)
	if !ok {
		return false
	}
	s.Close(reason)
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Peers lists the peer ids with a live session.
func (r *Registry) Peers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	peers := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		peers = append(peers, id)
	}
	return peers
}

// Close closes every session and refuses new ones. Every session is closed
// even when ctx is already done; ctx only bounds how long Close waits for
// the endpoints to be released.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	var g errgroup.Group
	for _, s := range sessions {
		g.Go(func() error {
			s.Close(ErrLeft)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		select {
		case <-done:
			return nil
		default:
			return ctx.Err()
		}
	}
}

// remove drops s only while it is still the registered session for its
// peer, so a replaced session closing late never evicts its successor.
func (r *Registry) remove(s *Session, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.peerID] == s {
		delete(r.sessions, s.peerID)
	}
}

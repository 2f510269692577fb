package peertest

import (
	"sync"

	"github.com/mossy-p/webrtc-broadcast/internal/peer"
	"github.com/pion/webrtc/v4"
)

// Sent is one message a Signaler was asked to deliver.
type Sent struct {
	Kind      string // offer, answer or candidate
	PeerID    string
	SDP       webrtc.SessionDescription
	Candidate webrtc.ICECandidateInit
}

// Signaler records outbound signaling in order.
type Signaler struct {
	Err error

	mu   sync.Mutex
	sent []Sent
}

var _ peer.Signaler = (*Signaler)(nil)

func (s *Signaler) SendOffer(peerID string, offer webrtc.SessionDescription) error {
	return s.record(Sent{Kind: "offer", PeerID: peerID, SDP: offer})
}

func (s *Signaler) SendAnswer(peerID string, answer webrtc.SessionDescription) error {
	return s.record(Sent{Kind: "answer", PeerID: peerID, SDP: answer})
}

func (s *Signaler) SendCandidate(peerID string, c webrtc.ICECandidateInit) error {
	return s.record(Sent{Kind: "candidate", PeerID: peerID, Candidate: c})
}

func (s *Signaler) record(m Sent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.sent = append(s.sent, m)
	return nil
}

// Sent returns every recorded message in order.
func (s *Signaler) Sent() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sent(nil), s.sent...)
}

// For returns the recorded messages addressed to peerID.
func (s *Signaler) For(peerID string) []Sent {
	var out []Sent
	for _, m := range s.Sent() {
		if m.PeerID == peerID {
			out = append(out, m)
		}
	}
	return out
}

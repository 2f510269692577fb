// Package peertest provides an in-memory MediaEndpoint and Signaler for
// exercising negotiation without a network.
package peertest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mossy-p/webrtc-broadcast/internal/peer"
	"github.com/pion/webrtc/v4"
)

var ErrInjected = errors.New("injected failure")

// Endpoint records every call made on it. Set the Fail* fields to make the
// matching call return ErrInjected.
type Endpoint struct {
	FailCreateOffer  bool
	FailCreateAnswer bool
	FailSetLocal     bool
	FailSetRemote    bool
	FailAddCandidate bool

	mu          sync.Mutex
	tracks      []webrtc.TrackLocal
	local       *webrtc.SessionDescription
	remote      *webrtc.SessionDescription
	candidates  []webrtc.ICECandidateInit
	closed      bool
	closeCalls  int
	remoteEarly bool

	onCandidate func(webrtc.ICECandidateInit)
	onTrack     func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	onState     func(webrtc.PeerConnectionState)
}

var _ peer.MediaEndpoint = (*Endpoint)(nil)

func NewEndpoint() *Endpoint {
	return &Endpoint{}
}

func (e *Endpoint) AddTrack(track webrtc.TrackLocal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tracks = append(e.tracks, track)
	return nil
}

func (e *Endpoint) CreateOffer() (webrtc.SessionDescription, error) {
	if e.FailCreateOffer {
		return webrtc.SessionDescription{}, ErrInjected
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%p", e)}, nil
}

func (e *Endpoint) CreateAnswer() (webrtc.SessionDescription, error) {
	if e.FailCreateAnswer {
		return webrtc.SessionDescription{}, ErrInjected
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("answer-%p", e)}, nil
}

func (e *Endpoint) SetLocalDescription(desc webrtc.SessionDescription) error {
	if e.FailSetLocal {
		return ErrInjected
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.local = &desc
	return nil
}

func (e *Endpoint) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if e.FailSetRemote {
		return ErrInjected
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remote = &desc
	return nil
}

func (e *Endpoint) LocalDescription() *webrtc.SessionDescription {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.local
}

// AddICECandidate records c. A candidate added before the remote
// description marks the endpoint as misused; see AppliedBeforeRemote.
func (e *Endpoint) AddICECandidate(c webrtc.ICECandidateInit) error {
	if e.FailAddCandidate {
		return ErrInjected
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.remote == nil {
		e.remoteEarly = true
	}
	e.candidates = append(e.candidates, c)
	return nil
}

func (e *Endpoint) OnICECandidate(f func(webrtc.ICECandidateInit)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onCandidate = f
}

func (e *Endpoint) OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTrack = f
}

func (e *Endpoint) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onState = f
}

func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.closeCalls++
	return nil
}

// GenerateCandidate fires the local candidate callback as the ICE agent would.
func (e *Endpoint) GenerateCandidate(c webrtc.ICECandidateInit) {
	e.mu.Lock()
	f := e.onCandidate
	e.mu.Unlock()
	if f != nil {
		f(c)
	}
}

// SetConnectionState fires the connection state callback.
func (e *Endpoint) SetConnectionState(state webrtc.PeerConnectionState) {
	e.mu.Lock()
	f := e.onState
	e.mu.Unlock()
	if f != nil {
		f(state)
	}
}

func (e *Endpoint) Tracks() []webrtc.TrackLocal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]webrtc.TrackLocal(nil), e.tracks...)
}

func (e *Endpoint) RemoteDescription() *webrtc.SessionDescription {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remote
}

// Candidates returns the applied remote candidates in order.
func (e *Endpoint) Candidates() []webrtc.ICECandidateInit {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), e.candidates...)
}

// AppliedBeforeRemote reports whether any candidate was applied before the
// remote description.
func (e *Endpoint) AppliedBeforeRemote() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remoteEarly
}

func (e *Endpoint) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Endpoint) CloseCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeCalls
}

// Factory hands out Endpoints and remembers them in creation order. Setup,
// when set, runs on every new Endpoint before it is returned.
type Factory struct {
	Fail  bool
	Setup func(*Endpoint)

	mu        sync.Mutex
	endpoints []*Endpoint
}

func (f *Factory) NewEndpoint() (peer.MediaEndpoint, error) {
	if f.Fail {
		return nil, ErrInjected
	}
	e := NewEndpoint()
	if f.Setup != nil {
		f.Setup(e)
	}
	f.mu.Lock()
	f.endpoints = append(f.endpoints, e)
	f.mu.Unlock()
	return e, nil
}

func (f *Factory) Endpoints() []*Endpoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Endpoint(nil), f.endpoints...)
}

// Last returns the most recently created endpoint.
func (f *Factory) Last() *Endpoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.endpoints) == 0 {
		return nil
	}
	return f.endpoints[len(f.endpoints)-1]
}

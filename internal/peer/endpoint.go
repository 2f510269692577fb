package peer

import "github.com/pion/webrtc/v4"

// MediaEndpoint is the peer-connection primitive a session drives.
// Callbacks must not be invoked synchronously from inside another
// MediaEndpoint method.
type MediaEndpoint interface {
	AddTrack(track webrtc.TrackLocal) error
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(f func(webrtc.ICECandidateInit))
	OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	Close() error
}

// EndpointFactory creates one fresh endpoint per session.
type EndpointFactory interface {
	NewEndpoint() (MediaEndpoint, error)
}

// Signaler carries a session's outbound signaling to its remote peer.
type Signaler interface {
	SendOffer(peerID string, offer webrtc.SessionDescription) error
	SendAnswer(peerID string, answer webrtc.SessionDescription) error
	SendCandidate(peerID string, candidate webrtc.ICECandidateInit) error
}

// Package media adapts pion/webrtc to the peer session interfaces and
// supplies file-backed media sources and sinks.
package media

import (
	"github.com/mossy-p/webrtc-broadcast/internal/peer"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Factory creates pion peer connections sharing one API instance.
type Factory struct {
	api    *webrtc.API
	config webrtc.Configuration
}

// NewFactory builds a pion API with the default codecs and interceptors.
// Each entry of iceServers becomes its own ICE server.
func NewFactory(iceServers []string, logger zerolog.Logger) (*Factory, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, err
	}

	settings := webrtc.SettingEngine{LoggerFactory: LoggerFactory{Logger: logger}}

	config := webrtc.Configuration{}
	for _, url := range iceServers {
		config.ICEServers = append(config.ICEServers, webrtc.ICEServer{URLs: []string{url}})
	}

	return &Factory{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(mediaEngine),
			webrtc.WithInterceptorRegistry(interceptorRegistry),
			webrtc.WithSettingEngine(settings),
		),
		config: config,
	}, nil
}

func (f *Factory) NewEndpoint() (peer.MediaEndpoint, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, err
	}
	return &Endpoint{pc: pc}, nil
}

// Endpoint is a peer.MediaEndpoint backed by a pion PeerConnection.
type Endpoint struct {
	pc *webrtc.PeerConnection
}

var _ peer.MediaEndpoint = (*Endpoint)(nil)

// AddTrack attaches a send-only track and drains its RTCP so interceptors
// keep working.
func (e *Endpoint) AddTrack(track webrtc.TrackLocal) error {
	transceiver, err := e.pc.AddTransceiverFromTrack(track, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendonly,
	})
	if err != nil {
		return err
	}

	sender := transceiver.Sender()
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (e *Endpoint) CreateOffer() (webrtc.SessionDescription, error) {
	return e.pc.CreateOffer(nil)
}

func (e *Endpoint) CreateAnswer() (webrtc.SessionDescription, error) {
	return e.pc.CreateAnswer(nil)
}

func (e *Endpoint) SetLocalDescription(desc webrtc.SessionDescription) error {
	return e.pc.SetLocalDescription(desc)
}

func (e *Endpoint) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return e.pc.SetRemoteDescription(desc)
}

func (e *Endpoint) LocalDescription() *webrtc.SessionDescription {
	return e.pc.LocalDescription()
}

func (e *Endpoint) AddICECandidate(c webrtc.ICECandidateInit) error {
	return e.pc.AddICECandidate(c)
}

func (e *Endpoint) OnICECandidate(f func(webrtc.ICECandidateInit)) {
	e.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering
		if c == nil {
			return
		}
		f(c.ToJSON())
	})
}

func (e *Endpoint) OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	e.pc.OnTrack(f)
}

func (e *Endpoint) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	e.pc.OnConnectionStateChange(f)
}

func (e *Endpoint) Close() error {
	return e.pc.Close()
}

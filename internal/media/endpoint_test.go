package media

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/mossy-p/webrtc-broadcast/internal/peer"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// loopback delivers signaling between two registries asynchronously, the
// way a relay would.
type loopback struct {
	self   string
	remote func() *peer.Registry
	queue  chan func()
}

func (l *loopback) SendOffer(_ string, offer webrtc.SessionDescription) error {
	l.queue <- func() {
		s := l.remote().Create(l.self, peer.RespondingAnswerer, mustEndpoint())
		s.Answer(offer)
	}
	return nil
}

func (l *loopback) SendAnswer(_ string, answer webrtc.SessionDescription) error {
	l.queue <- func() {
		if s, ok := l.remote().Lookup(l.self); ok {
			s.AcceptAnswer(answer)
		}
	}
	return nil
}

func (l *loopback) SendCandidate(_ string, c webrtc.ICECandidateInit) error {
	l.queue <- func() {
		if s, ok := l.remote().Lookup(l.self); ok {
			s.AddRemoteCandidate(c)
		}
	}
	return nil
}

var testFactory *Factory

func mustEndpoint() peer.MediaEndpoint {
	ep, err := testFactory.NewEndpoint()
	if err != nil {
		panic(err)
	}
	return ep
}

func TestPionEndpointNegotiation(t *testing.T) {
	var err error
	testFactory, err = NewFactory(nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFactory failed: %v", err)
	}

	queue := make(chan func(), 256)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case f := <-queue:
				f()
			case <-done:
				return
			}
		}
	}()

	var broadcaster, viewer *peer.Registry
	broadcaster = peer.NewRegistry(&loopback{self: "b1", remote: func() *peer.Registry { return viewer }, queue: queue}, 0)
	viewer = peer.NewRegistry(&loopback{self: "v1", remote: func() *peer.Registry { return broadcaster }, queue: queue}, 0)
	defer broadcaster.Close(t.Context())
	defer viewer.Close(t.Context())

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "broadcast")
	if err != nil {
		t.Fatalf("NewTrackLocalStaticSample failed: %v", err)
	}

	ep := mustEndpoint()
	if err := ep.AddTrack(track); err != nil {
		t.Fatalf("AddTrack failed: %v", err)
	}
	session := broadcaster.Create("v1", peer.InitiatingOfferer, ep)
	if err := session.Offer(); err != nil {
		t.Fatalf("Offer failed: %v", err)
	}

	local := ep.LocalDescription()
	if local == nil || !strings.Contains(local.SDP, "m=video") || !strings.Contains(local.SDP, "a=sendonly") {
		t.Fatalf("offer does not carry a send-only video section: %+v", local)
	}

	deadline := time.After(10 * time.Second)
	for session.State() != peer.Stable {
		select {
		case <-deadline:
			t.Fatalf("offerer stuck in %s", session.State())
		case <-time.After(10 * time.Millisecond):
		}
	}

	remote, ok := viewer.Lookup("b1")
	if !ok {
		t.Fatal("viewer has no session for the broadcaster")
	}
	if remote.State() != peer.Stable {
		t.Errorf("answerer state = %s", remote.State())
	}
	answer := remote.Endpoint().LocalDescription()
	if answer == nil || answer.Type != webrtc.SDPTypeAnswer || !strings.Contains(answer.SDP, "a=recvonly") {
		t.Errorf("unexpected answer: %+v", answer)
	}
}

func TestLoggerFactoryScopes(t *testing.T) {
	var buf bytes.Buffer
	f := LoggerFactory{Logger: zerolog.New(&buf).Level(zerolog.DebugLevel)}

	l := f.NewLogger("ice")
	l.Debugf("gathered %d candidates", 3)
	l.Trace("dropped below level")
	l.Error("boom")

	out := buf.String()
	if !strings.Contains(out, `"pion":"ice"`) || !strings.Contains(out, "gathered 3 candidates") || !strings.Contains(out, "boom") {
		t.Errorf("unexpected log output: %s", out)
	}
	if strings.Contains(out, "dropped below level") {
		t.Error("trace message passed a debug-level logger")
	}
}

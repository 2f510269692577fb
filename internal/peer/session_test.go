package peer_test

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/mossy-p/webrtc-broadcast/internal/peer"
	"github.com/mossy-p/webrtc-broadcast/internal/peer/peertest"
	"github.com/pion/webrtc/v4"
)

func candidate(n int) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: fmt.Sprintf("candidate:%d 1 udp 2130706431 10.0.0.%d 5000 typ host", n, n)}
}

func answerFor(n int) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("remote-answer-%d", n)}
}

func offerFor(n int) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("remote-offer-%d", n)}
}

func TestOffererNegotiation(t *testing.T) {
	sig := &peertest.Signaler{}
	reg := peer.NewRegistry(sig, 0)
	ep := peertest.NewEndpoint()

	s := reg.Create("v1", peer.InitiatingOfferer, ep)
	if s.State() != peer.Created {
		t.Fatalf("initial state = %s, want created", s.State())
	}

	if err := s.Offer(); err != nil {
		t.Fatalf("Offer failed: %v", err)
	}
	if s.State() != peer.LocalDescriptionSet {
		t.Errorf("state after offer = %s", s.State())
	}

	sent := sig.For("v1")
	if len(sent) != 1 || sent[0].Kind != "offer" || sent[0].SDP.Type != webrtc.SDPTypeOffer {
		t.Fatalf("sent = %+v, want one offer", sent)
	}

	for i := 0; i < 3; i++ {
		if err := s.AddRemoteCandidate(candidate(i)); err != nil {
			t.Fatalf("AddRemoteCandidate failed: %v", err)
		}
	}
	if got := len(ep.Candidates()); got != 0 {
		t.Fatalf("%d candidates applied before the answer", got)
	}
	if s.PendingCandidates() != 3 {
		t.Errorf("pending = %d, want 3", s.PendingCandidates())
	}

	if err := s.AcceptAnswer(answerFor(1)); err != nil {
		t.Fatalf("AcceptAnswer failed: %v", err)
	}
	if s.State() != peer.Stable {
		t.Errorf("state after answer = %s, want stable", s.State())
	}
	if s.PendingCandidates() != 0 {
		t.Errorf("pending after replay = %d", s.PendingCandidates())
	}

	if err := s.AddRemoteCandidate(candidate(3)); err != nil {
		t.Fatalf("AddRemoteCandidate failed: %v", err)
	}

	applied := ep.Candidates()
	if len(applied) != 4 {
		t.Fatalf("applied %d candidates, want 4", len(applied))
	}
	for i, c := range applied {
		if c.Candidate != candidate(i).Candidate {
			t.Errorf("candidate %d out of order: %s", i, c.Candidate)
		}
	}
	if ep.AppliedBeforeRemote() {
		t.Error("candidate applied before remote description")
	}
}

func TestOfferPrecedesLocalCandidates(t *testing.T) {
	sig := &peertest.Signaler{}
	reg := peer.NewRegistry(sig, 0)
	ep := peertest.NewEndpoint()
	s := reg.Create("v1", peer.InitiatingOfferer, ep)

	ep.GenerateCandidate(candidate(1))
	ep.GenerateCandidate(candidate(2))
	if len(sig.Sent()) != 0 {
		t.Fatalf("candidates sent before the offer: %+v", sig.Sent())
	}

	if err := s.Offer(); err != nil {
		t.Fatalf("Offer failed: %v", err)
	}
	ep.GenerateCandidate(candidate(3))

	sent := sig.For("v1")
	want := []string{"offer", "candidate", "candidate", "candidate"}
	if len(sent) != len(want) {
		t.Fatalf("sent %d messages, want %d", len(sent), len(want))
	}
	for i, k := range want {
		if sent[i].Kind != k {
			t.Errorf("message %d = %s, want %s", i, sent[i].Kind, k)
		}
	}
	if sent[3].Candidate.Candidate != candidate(3).Candidate {
		t.Errorf("last candidate = %s", sent[3].Candidate.Candidate)
	}
}

func TestAnswererNegotiation(t *testing.T) {
	sig := &peertest.Signaler{}
	reg := peer.NewRegistry(sig, 0)
	ep := peertest.NewEndpoint()
	s := reg.Create("b1", peer.RespondingAnswerer, ep)

	if err := s.AddRemoteCandidate(candidate(0)); err != nil {
		t.Fatalf("AddRemoteCandidate failed: %v", err)
	}
	ep.GenerateCandidate(candidate(9))

	if err := s.Answer(offerFor(1)); err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if s.State() != peer.Stable {
		t.Errorf("state = %s, want stable", s.State())
	}
	if ep.RemoteDescription() == nil || ep.RemoteDescription().SDP != offerFor(1).SDP {
		t.Errorf("remote description = %+v", ep.RemoteDescription())
	}
	if got := ep.Candidates(); len(got) != 1 || ep.AppliedBeforeRemote() {
		t.Errorf("applied = %v, early = %v", got, ep.AppliedBeforeRemote())
	}

	sent := sig.For("b1")
	if len(sent) != 2 || sent[0].Kind != "answer" || sent[1].Kind != "candidate" {
		t.Fatalf("sent = %+v, want answer then candidate", sent)
	}
	if sent[0].SDP.Type != webrtc.SDPTypeAnswer {
		t.Errorf("answer type = %s", sent[0].SDP.Type)
	}
}

func TestBufferedCandidatesAppliedOnceInOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		total := rng.Intn(12)
		early := 0
		if total > 0 {
			early = rng.Intn(total + 1)
		}

		ep := peertest.NewEndpoint()
		reg := peer.NewRegistry(&peertest.Signaler{}, 0)
		role := peer.InitiatingOfferer
		if round%2 == 1 {
			role = peer.RespondingAnswerer
		}
		s := reg.Create("p", role, ep)

		if role == peer.InitiatingOfferer {
			if err := s.Offer(); err != nil {
				t.Fatalf("Offer failed: %v", err)
			}
		}
		for i := 0; i < early; i++ {
			s.AddRemoteCandidate(candidate(i))
		}
		if len(ep.Candidates()) != 0 {
			t.Fatalf("round %d: candidate applied before description", round)
		}

		var err error
		if role == peer.InitiatingOfferer {
			err = s.AcceptAnswer(answerFor(round))
		} else {
			err = s.Answer(offerFor(round))
		}
		if err != nil {
			t.Fatalf("round %d: description failed: %v", round, err)
		}
		for i := early; i < total; i++ {
			s.AddRemoteCandidate(candidate(i))
		}

		applied := ep.Candidates()
		if len(applied) != total {
			t.Fatalf("round %d: applied %d, want %d", round, len(applied), total)
		}
		for i, c := range applied {
			if c.Candidate != candidate(i).Candidate {
				t.Fatalf("round %d: candidate %d = %s", round, i, c.Candidate)
			}
		}
		if ep.AppliedBeforeRemote() {
			t.Fatalf("round %d: candidate applied early", round)
		}
	}
}

func TestNegotiationFailureClosesSession(t *testing.T) {
	tests := []struct {
		name  string
		role  peer.Role
		setup func(*peertest.Endpoint, *peertest.Signaler)
		step  string
	}{
		{"create offer", peer.InitiatingOfferer, func(e *peertest.Endpoint, _ *peertest.Signaler) { e.FailCreateOffer = true }, "create offer"},
		{"set local offer", peer.InitiatingOfferer, func(e *peertest.Endpoint, _ *peertest.Signaler) { e.FailSetLocal = true }, "set local description"},
		{"send offer", peer.InitiatingOfferer, func(_ *peertest.Endpoint, s *peertest.Signaler) { s.Err = errors.New("down") }, "send offer"},
		{"set remote offer", peer.RespondingAnswerer, func(e *peertest.Endpoint, _ *peertest.Signaler) { e.FailSetRemote = true }, "set remote description"},
		{"create answer", peer.RespondingAnswerer, func(e *peertest.Endpoint, _ *peertest.Signaler) { e.FailCreateAnswer = true }, "create answer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := &peertest.Signaler{}
			ep := peertest.NewEndpoint()
			tt.setup(ep, sig)
			reg := peer.NewRegistry(sig, 0)
			s := reg.Create("p1", tt.role, ep)

			var err error
			if tt.role == peer.InitiatingOfferer {
				err = s.Offer()
			} else {
				err = s.Answer(offerFor(1))
			}

			var nerr *peer.NegotiationError
			if !errors.As(err, &nerr) {
				t.Fatalf("err = %v, want NegotiationError", err)
			}
			if nerr.Step != tt.step || nerr.PeerID != "p1" {
				t.Errorf("NegotiationError = %+v", nerr)
			}
			if s.State() != peer.Closed || !ep.Closed() {
				t.Errorf("state = %s, endpoint closed = %v", s.State(), ep.Closed())
			}
			if _, ok := reg.Lookup("p1"); ok {
				t.Error("failed session still registered")
			}
		})
	}
}

func TestAcceptAnswerRejectsWrongState(t *testing.T) {
	reg := peer.NewRegistry(&peertest.Signaler{}, 0)
	s := reg.Create("v1", peer.InitiatingOfferer, peertest.NewEndpoint())

	if err := s.AcceptAnswer(answerFor(1)); !errors.Is(err, peer.ErrInvalidState) {
		t.Errorf("answer before offer err = %v", err)
	}
	if s.State() != peer.Created {
		t.Errorf("state = %s, want created", s.State())
	}

	answerer := reg.Create("b1", peer.RespondingAnswerer, peertest.NewEndpoint())
	if err := answerer.Offer(); !errors.Is(err, peer.ErrInvalidState) {
		t.Errorf("Offer on answerer err = %v", err)
	}
}

func TestClosedSessionRejectsCandidates(t *testing.T) {
	reg := peer.NewRegistry(&peertest.Signaler{}, 0)
	s := reg.Create("v1", peer.InitiatingOfferer, peertest.NewEndpoint())
	s.Close(peer.ErrLeft)

	if err := s.AddRemoteCandidate(candidate(1)); !errors.Is(err, peer.ErrSessionClosed) {
		t.Errorf("err = %v, want ErrSessionClosed", err)
	}
	if !errors.Is(s.Err(), peer.ErrLeft) {
		t.Errorf("Err() = %v", s.Err())
	}
	s.Close(errors.New("again"))
	if !errors.Is(s.Err(), peer.ErrLeft) {
		t.Error("second Close overwrote the close reason")
	}
}

func TestConnectionFailureDiscardsSession(t *testing.T) {
	reg := peer.NewRegistry(&peertest.Signaler{}, 0)
	ep := peertest.NewEndpoint()
	s := reg.Create("v1", peer.InitiatingOfferer, ep)
	s.Offer()
	s.AcceptAnswer(answerFor(1))

	ep.SetConnectionState(webrtc.PeerConnectionStateDisconnected)
	if s.State() != peer.Stable {
		t.Fatalf("disconnected should be transient, state = %s", s.State())
	}

	ep.SetConnectionState(webrtc.PeerConnectionStateFailed)
	if s.State() != peer.Closed {
		t.Errorf("state = %s, want closed", s.State())
	}
	if !errors.Is(s.Err(), peer.ErrConnectionClosed) {
		t.Errorf("Err() = %v", s.Err())
	}
	if reg.Len() != 0 {
		t.Errorf("registry still holds %d sessions", reg.Len())
	}
}

func TestNegotiationTimeout(t *testing.T) {
	reg := peer.NewRegistry(&peertest.Signaler{}, 20*time.Millisecond)
	ep := peertest.NewEndpoint()
	s := reg.Create("v1", peer.InitiatingOfferer, ep)
	if err := s.Offer(); err != nil {
		t.Fatalf("Offer failed: %v", err)
	}

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stalled negotiation never timed out")
	}

	var nerr *peer.NegotiationError
	if !errors.As(s.Err(), &nerr) || !errors.Is(s.Err(), peer.ErrNegotiationTimeout) {
		t.Errorf("Err() = %v", s.Err())
	}
	if !ep.Closed() || reg.Len() != 0 {
		t.Errorf("endpoint closed = %v, registry len = %d", ep.Closed(), reg.Len())
	}
}

func TestStableSessionDoesNotTimeOut(t *testing.T) {
	reg := peer.NewRegistry(&peertest.Signaler{}, 30*time.Millisecond)
	s := reg.Create("b1", peer.RespondingAnswerer, peertest.NewEndpoint())
	if err := s.Answer(offerFor(1)); err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	time.Sleep(80 * time.Millisecond)
	if s.State() != peer.Stable {
		t.Errorf("state = %s, want stable", s.State())
	}
}

func TestConcurrentSessionsReachStable(t *testing.T) {
	sig := &peertest.Signaler{}
	reg := peer.NewRegistry(sig, 0)

	const viewers = 8
	endpoints := make([]*peertest.Endpoint, viewers)
	sessions := make([]*peer.Session, viewers)
	for i := range sessions {
		endpoints[i] = peertest.NewEndpoint()
		sessions[i] = reg.Create(fmt.Sprintf("v%d", i), peer.InitiatingOfferer, endpoints[i])
	}

	var wg sync.WaitGroup
	for i, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddRemoteCandidate(candidate(i))
			if err := s.Offer(); err != nil {
				t.Errorf("Offer %d failed: %v", i, err)
				return
			}
			endpoints[i].GenerateCandidate(candidate(100 + i))
			s.AddRemoteCandidate(candidate(200 + i))
			if err := s.AcceptAnswer(answerFor(i)); err != nil {
				t.Errorf("AcceptAnswer %d failed: %v", i, err)
			}
		}()
	}
	wg.Wait()

	for i, s := range sessions {
		if s.State() != peer.Stable {
			t.Errorf("session %d state = %s", i, s.State())
		}
		if got := len(endpoints[i].Candidates()); got != 2 {
			t.Errorf("session %d applied %d candidates, want 2", i, got)
		}
		sent := sig.For(fmt.Sprintf("v%d", i))
		if len(sent) != 2 || sent[0].Kind != "offer" {
			t.Errorf("session %d sent %+v", i, sent)
		}
	}
}

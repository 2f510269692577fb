package models

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

// Event names carried on the signaling channel
const (
	EventRegisterBroadcaster = "register as broadcaster"
	EventRegisterViewer      = "register as viewer"
	EventNewViewer           = "new viewer"
	EventOffer               = "offer"
	EventAnswer              = "answer"
	EventCandidate           = "candidate"
	EventViewerLeft          = "viewer left"
	EventBroadcasterLeft     = "broadcaster left"
	EventError               = "error"
)

// Event is the envelope every signaling message travels in.
// Arguments are kept raw so each handler decodes its own positional shape.
type Event struct {
	EventName string            `json:"eventName"`
	Arguments []json.RawMessage `json:"arguments"`
}

// NewEvent marshals args positionally into an envelope.
func NewEvent(name string, args ...any) (Event, error) {
	ev := Event{EventName: name, Arguments: make([]json.RawMessage, 0, len(args))}
	for _, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return Event{}, err
		}
		ev.Arguments = append(ev.Arguments, raw)
	}
	return ev, nil
}

// Participant is a room member as introduced by the relay.
// ID is relay-assigned and empty until the relay stamps it.
type Participant struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Room string `json:"room,omitempty"`
}

// OfferPayload is the second argument of "offer".
type OfferPayload struct {
	Type        string                    `json:"type"`
	SDP         webrtc.SessionDescription `json:"sdp"`
	Broadcaster Participant               `json:"broadcaster"`
}

// AnswerPayload is the second argument of "answer".
type AnswerPayload struct {
	Type string                    `json:"type"`
	SDP  webrtc.SessionDescription `json:"sdp"`
	Room string                    `json:"room"`
}

// CandidatePayload is the second argument of "candidate".
type CandidatePayload struct {
	Type      string  `json:"type"`
	Label     *uint16 `json:"label,omitempty"`
	ID        *string `json:"id,omitempty"`
	Candidate string  `json:"candidate"`
}

// NewCandidatePayload converts a pion candidate into its wire form.
func NewCandidatePayload(c webrtc.ICECandidateInit) CandidatePayload {
	return CandidatePayload{
		Type:      EventCandidate,
		Label:     c.SDPMLineIndex,
		ID:        c.SDPMid,
		Candidate: c.Candidate,
	}
}

// ICECandidateInit converts the wire form back into a pion candidate.
func (p CandidatePayload) ICECandidateInit() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     p.Candidate,
		SDPMid:        p.ID,
		SDPMLineIndex: p.Label,
	}
}

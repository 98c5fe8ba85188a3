package models

import "encoding/json"

// Kind identifies a call-control message on the signaling channel
type Kind string

const (
	KindPresenceSnapshot Kind = "presence-snapshot"
	KindCallInvite       Kind = "call-invite"
	KindCallAnswer       Kind = "call-answer"
	KindICECandidate     Kind = "ice-candidate"
	KindCallEnd          Kind = "call-end"
	KindCallReject       Kind = "call-reject"
	KindCallFailed       Kind = "call-failed"
)

// Envelope is the wire message exchanged over the signaling channel.
// CallID is generated by the caller at invite time; both sides ignore
// call-control envelopes whose CallID does not match their active call.
type Envelope struct {
	Kind        Kind            `json:"kind"`
	CallID      string          `json:"callId,omitempty"`
	From        string          `json:"from,omitempty"`
	To          string          `json:"to,omitempty"`
	DisplayName string          `json:"displayName,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// OfferPayload carries the SDP of a call-invite.
type OfferPayload struct {
	SDP string `json:"sdp"`
}

// AnswerPayload carries the SDP of a call-answer.
type AnswerPayload struct {
	SDP string `json:"sdp"`
}

// CandidatePayload carries one ICE candidate as produced by the transport
// (webrtc.ICECandidateInit JSON); the relay never inspects it.
type CandidatePayload struct {
	Candidate json.RawMessage `json:"candidate"`
}

// FailedPayload is attached to call-failed envelopes synthesized by the relay.
type FailedPayload struct {
	Reason string `json:"reason"`
}

// ReasonOffline is the only relay-synthesized failure reason.
const ReasonOffline = "offline"

// SnapshotPayload lists every identity currently registered with the relay.
type SnapshotPayload struct {
	Online []string `json:"online"`
}

// EncodePayload marshals p into an envelope payload. Payload types are
// plain structs, so marshaling cannot fail in practice.
func EncodePayload(p any) json.RawMessage {
	data, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	return data
}

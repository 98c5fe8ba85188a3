package call

import "encoding/json"

// TransportState mirrors the peer connection state of the underlying
// transport.
type TransportState int

const (
	TransportNew TransportState = iota
	TransportConnecting
	TransportConnected
	TransportDisconnected
	TransportFailed
	TransportClosed
)

func (t TransportState) String() string {
	switch t {
	case TransportNew:
		return "new"
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	case TransportDisconnected:
		return "disconnected"
	case TransportFailed:
		return "failed"
	case TransportClosed:
		return "closed"
	}
	return "unknown"
}

// RemoteTrack is the handle for inbound media surfaced to the UI. The
// session does not touch the media itself.
type RemoteTrack struct {
	ID   string
	Kind string
}

// PipelineEvents are the callbacks a Pipeline fires. They may be invoked
// from transport-internal goroutines; the session serializes them onto its
// own event queue.
type PipelineEvents struct {
	OnLocalCandidate        func(candidate json.RawMessage)
	OnRemoteTrack           func(track RemoteTrack)
	OnTransportStateChanged func(state TransportState)
}

// Pipeline is the session's only view of the peer-to-peer transport. The
// core drives negotiation through it and reacts to its events but never
// carries media. Candidates are opaque JSON blobs end to end.
type Pipeline interface {
	// CreateOffer produces the local description for an outbound call
	// and installs it as the local description.
	CreateOffer() (sdp string, err error)
	// CreateAnswer applies remoteOffer as the remote description and
	// produces and installs the local answer.
	CreateAnswer(remoteOffer string) (sdp string, err error)
	// SetRemoteDescription applies the remote answer on the caller side.
	SetRemoteDescription(answerSDP string) error
	AddICECandidate(candidate json.RawMessage) error
	// AddLocalMedia attaches captured tracks before negotiation.
	AddLocalMedia(media LocalMedia) error
	// TransportState reports the current transport state, used by the
	// reconnection probe.
	TransportState() TransportState
	Close() error
}

// PipelineFactory builds a fresh Pipeline per call session.
type PipelineFactory func(events PipelineEvents) (Pipeline, error)

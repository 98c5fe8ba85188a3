package call

import "encoding/json"

// State is the lifecycle state of one call session.
type State int

const (
	StateIdle State = iota
	StateCalling
	StateRinging
	StateConnecting
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCalling:
		return "calling"
	case StateRinging:
		return "ringing"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// Role distinguishes the side that sent the invite from the side that
// received it.
type Role int

const (
	RoleInitiator Role = iota
	RoleReceiver
)

// NegotiationState tracks offer/answer progress independently of the
// lifecycle state.
type NegotiationState int

const (
	NegotiationNone NegotiationState = iota
	NegotiationOfferSent
	NegotiationOfferReceived
	NegotiationAnswerSent
	NegotiationAnswerReceived
)

// EndReason is recorded when a session reaches StateEnded.
type EndReason string

const (
	ReasonNone             EndReason = ""
	ReasonNoAnswer         EndReason = "no-answer"
	ReasonHangup           EndReason = "hangup"
	ReasonRemoteEnd        EndReason = "remote-end"
	ReasonRejected         EndReason = "rejected"
	ReasonRemoteOffline    EndReason = "offline"
	ReasonTransportFailed  EndReason = "transport-failed"
	ReasonMediaError       EndReason = "media-error"
	ReasonNegotiationError EndReason = "negotiation-error"
	ReasonChannelLost      EndReason = "channel-lost"
)

// --- events ---
//
// Every input to a session, whether from the relay, the UI, the media
// pipeline, or a timer, is an event processed serially by the session
// worker. No two transitions for the same session ever run concurrently.

type event interface{ isEvent() }

// UI events.
type evStartOutbound struct{}
type evAccept struct{}
type evReject struct{}
type evHangup struct{}

// Relay events.
type evIncomingInvite struct {
	From        string
	DisplayName string
	SDP         string
}
type evRemoteAnswer struct{ SDP string }
type evRemoteCandidate struct{ Candidate json.RawMessage }
type evRemoteEnd struct{}
type evRemoteReject struct{}
type evCallFailed struct{ Reason string }
type evChannelLost struct{}

// Pipeline/media events. The offer/answer completion events carry the
// pipeline and media built by the async setup goroutine; the worker adopts
// them when it processes the event, so only the worker ever touches them.
type evOfferReady struct {
	SDP      string
	pipeline Pipeline
	media    LocalMedia
}
type evAnswerReady struct {
	SDP      string
	pipeline Pipeline
	media    LocalMedia
}
type evMediaFailed struct{ Err error }
type evNegotiationFailed struct{ Err error }
type evLocalCandidate struct{ Candidate json.RawMessage }
type evTransportState struct{ State TransportState }

// Timer events.
type evAnswerTimeout struct{}
type evReconnectProbe struct{}

func (evStartOutbound) isEvent()     {}
func (evAccept) isEvent()            {}
func (evReject) isEvent()            {}
func (evHangup) isEvent()            {}
func (evIncomingInvite) isEvent()    {}
func (evRemoteAnswer) isEvent()      {}
func (evRemoteCandidate) isEvent()   {}
func (evRemoteEnd) isEvent()         {}
func (evRemoteReject) isEvent()      {}
func (evCallFailed) isEvent()        {}
func (evChannelLost) isEvent()       {}
func (evOfferReady) isEvent()        {}
func (evAnswerReady) isEvent()       {}
func (evMediaFailed) isEvent()       {}
func (evNegotiationFailed) isEvent() {}
func (evLocalCandidate) isEvent()    {}
func (evTransportState) isEvent()    {}
func (evAnswerTimeout) isEvent()     {}
func (evReconnectProbe) isEvent()    {}

// --- effects ---
//
// transition returns effects instead of performing side effects itself so
// the state logic stays a plain function over (state, event).

type effect interface{ isEffect() }

type effStartOutbound struct{}
type effStartAnswer struct{ OfferSDP string }
type effSendInvite struct{ SDP string }
type effSendAnswer struct{ SDP string }
type effSendCandidate struct{ Candidate json.RawMessage }
type effSendReject struct{}
type effApplyAnswer struct{ SDP string }
type effApplyCandidate struct{ Candidate json.RawMessage }
type effFlushRemoteCandidates struct{}
type effFlushLocalCandidates struct{}
type effArmAnswerTimer struct{}
type effCancelAnswerTimer struct{}
type effArmReconnectProbe struct{}
type effCheckTransport struct{}
type effRing struct{}
type effNotify struct{ Notice Notice }
type effTeardown struct{ SendEnd bool }

// effRelease disposes of a pipeline and media that no state adopted, such
// as a setup completion arriving after the session moved on.
type effRelease struct {
	pipeline Pipeline
	media    LocalMedia
}

func (effStartOutbound) isEffect()         {}
func (effStartAnswer) isEffect()           {}
func (effSendInvite) isEffect()            {}
func (effSendAnswer) isEffect()            {}
func (effSendCandidate) isEffect()         {}
func (effSendReject) isEffect()            {}
func (effApplyAnswer) isEffect()           {}
func (effApplyCandidate) isEffect()        {}
func (effFlushRemoteCandidates) isEffect() {}
func (effFlushLocalCandidates) isEffect()  {}
func (effArmAnswerTimer) isEffect()        {}
func (effCancelAnswerTimer) isEffect()     {}
func (effArmReconnectProbe) isEffect()     {}
func (effCheckTransport) isEffect()        {}
func (effRing) isEffect()                  {}
func (effNotify) isEffect()                {}
func (effTeardown) isEffect()              {}
func (effRelease) isEffect()               {}

// Notice is a user-visible, dismissible message. The session never blocks
// on the UI acknowledging one.
type Notice struct {
	Level NoticeLevel
	Text  string
}

type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeWarn
	NoticeError
)

// transition is the single state-transition function. It may read and
// update session bookkeeping (negotiation flags, candidate buffers) but
// performs no I/O; all I/O happens when the returned effects execute.
func (s *Session) transition(ev event) []effect {
	if s.state == StateEnded {
		return releaseUnclaimed(ev)
	}

	// Events that end the call regardless of the current state.
	switch e := ev.(type) {
	case evRemoteEnd:
		return s.toEnded(ReasonRemoteEnd, effNotify{Notice{NoticeInfo, "Call ended by " + s.remoteName}}, effTeardown{})
	case evHangup:
		return s.toEnded(ReasonHangup, effTeardown{SendEnd: true})
	case evChannelLost:
		return s.toEnded(ReasonChannelLost,
			effNotify{Notice{NoticeError, "Connection to the signaling server was lost"}},
			effTeardown{})
	case evMediaFailed:
		return s.toEnded(ReasonMediaError,
			effNotify{Notice{NoticeError, mediaErrorText(e.Err)}},
			effTeardown{})
	case evNegotiationFailed:
		return s.toEnded(ReasonNegotiationError,
			effNotify{Notice{NoticeError, "Call setup failed: " + e.Err.Error()}},
			effTeardown{})
	case evLocalCandidate:
		// Candidates discovered before our own description is sent are
		// buffered and flushed together with the invite or answer.
		if s.localDescSent {
			return []effect{effSendCandidate{Candidate: e.Candidate}}
		}
		s.pendingLocal = append(s.pendingLocal, e.Candidate)
		return nil
	case evRemoteCandidate:
		// Never dropped, never applied before the remote description.
		if s.remoteDescApplied {
			return []effect{effApplyCandidate{Candidate: e.Candidate}}
		}
		s.pendingRemote = append(s.pendingRemote, e.Candidate)
		return nil
	}

	var effs []effect
	switch s.state {
	case StateIdle:
		effs = s.transitionIdle(ev)
	case StateCalling:
		effs = s.transitionCalling(ev)
	case StateRinging:
		effs = s.transitionRinging(ev)
	case StateConnecting, StateActive:
		effs = s.transitionEstablished(ev)
	}
	if effs == nil {
		// An ignored setup completion still carries a live pipeline
		// and open devices.
		return releaseUnclaimed(ev)
	}
	return effs
}

// releaseUnclaimed turns an unadopted setup completion into a release of
// the resources it carries. Any other event releases nothing.
func releaseUnclaimed(ev event) []effect {
	switch e := ev.(type) {
	case evOfferReady:
		return []effect{effRelease{pipeline: e.pipeline, media: e.media}}
	case evAnswerReady:
		return []effect{effRelease{pipeline: e.pipeline, media: e.media}}
	}
	return nil
}

func (s *Session) transitionIdle(ev event) []effect {
	switch e := ev.(type) {
	case evStartOutbound:
		return []effect{effStartOutbound{}}
	case evOfferReady:
		s.state = StateCalling
		s.negotiation = NegotiationOfferSent
		s.localDescSent = true
		s.adopt(e.pipeline, e.media)
		return []effect{effSendInvite{SDP: e.SDP}, effFlushLocalCandidates{}, effArmAnswerTimer{}}
	case evIncomingInvite:
		s.state = StateRinging
		s.negotiation = NegotiationOfferReceived
		s.remoteID = e.From
		s.remoteName = e.DisplayName
		s.bufferedOffer = e.SDP
		// Local media stays untouched until the user accepts.
		return []effect{effRing{}}
	}
	return nil
}

func (s *Session) transitionCalling(ev event) []effect {
	switch e := ev.(type) {
	case evRemoteAnswer:
		s.state = StateConnecting
		s.negotiation = NegotiationAnswerReceived
		s.remoteDescApplied = true
		return []effect{effCancelAnswerTimer{}, effApplyAnswer{SDP: e.SDP}, effFlushRemoteCandidates{}}
	case evAnswerTimeout:
		// No message to the remote side; the asymmetry is deliberate,
		// matching the callee having no ring timeout of its own.
		return s.toEnded(ReasonNoAnswer,
			effNotify{Notice{NoticeInfo, s.remoteName + " did not answer"}},
			effTeardown{})
	case evCallFailed:
		return s.toEnded(ReasonRemoteOffline,
			effNotify{Notice{NoticeInfo, s.remoteName + " is offline"}},
			effTeardown{})
	case evRemoteReject:
		return s.toEnded(ReasonRejected,
			effNotify{Notice{NoticeInfo, s.remoteName + " declined the call"}},
			effTeardown{})
	}
	return nil
}

func (s *Session) transitionRinging(ev event) []effect {
	switch e := ev.(type) {
	case evAccept:
		// A repeated accept while the answer is still being built must
		// not spawn a second setup goroutine.
		if s.accepting {
			return nil
		}
		s.accepting = true
		return []effect{effStartAnswer{OfferSDP: s.bufferedOffer}}
	case evAnswerReady:
		s.accepting = false
		s.state = StateConnecting
		s.negotiation = NegotiationAnswerSent
		s.localDescSent = true
		// The answer was built from the buffered offer, so the remote
		// description is applied by now.
		s.remoteDescApplied = true
		s.adopt(e.pipeline, e.media)
		return []effect{effSendAnswer{SDP: e.SDP}, effFlushLocalCandidates{}, effFlushRemoteCandidates{}}
	case evReject:
		return s.toEnded(ReasonRejected, effSendReject{}, effTeardown{})
	case evCallFailed:
		// Tried to answer after the caller gave up or went away.
		return s.toEnded(ReasonRemoteOffline,
			effNotify{Notice{NoticeInfo, s.remoteName + " is no longer reachable"}},
			effTeardown{})
	}
	return nil
}

func (s *Session) transitionEstablished(ev event) []effect {
	switch e := ev.(type) {
	case evTransportState:
		switch e.State {
		case TransportConnected:
			if s.state != StateActive {
				s.state = StateActive
			}
			s.probes = 0
			return nil
		case TransportDisconnected:
			// Not terminal: wait, then re-check. Only the adapter
			// declaring failure ends the call.
			return []effect{effArmReconnectProbe{}}
		case TransportFailed:
			return s.toEnded(ReasonTransportFailed,
				effNotify{Notice{NoticeError, "Call connection failed"}},
				effTeardown{})
		}
		return nil
	case evReconnectProbe:
		s.probes++
		return []effect{effCheckTransport{}}
	case evRemoteReject:
		return s.toEnded(ReasonRejected, effTeardown{})
	case evCallFailed:
		return s.toEnded(ReasonRemoteOffline,
			effNotify{Notice{NoticeWarn, s.remoteName + " went offline"}},
			effTeardown{})
	}
	return nil
}

func (s *Session) toEnded(reason EndReason, effs ...effect) []effect {
	s.state = StateEnded
	s.reason = reason
	return effs
}

package call

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/LightningMCquen/Fullstack-chat-VC-app/internal/models"
)

const (
	// answerTimeout is armed by the caller only. The callee deliberately
	// has no ring timeout; it ends when the caller's invite expires and
	// a later answer bounces off the relay as call-failed.
	answerTimeout = 15 * time.Second

	// reconnectWait is the fixed backoff between transport-disconnected
	// and the liveness re-check.
	reconnectWait = 2 * time.Second

	// maxReconnectProbes bounds the re-check loop when the transport
	// stays disconnected without declaring failure on its own.
	maxReconnectProbes = 5

	eventQueueSize = 32
)

type sessionDeps struct {
	signaler    Signaler
	devices     MediaDevices
	newPipeline PipelineFactory
	onRing      func(*Session)
	onNotice    func(Notice)
	onDone      func(*Session)
}

// Session is one active or pending call. All transitions run on the
// session's own worker goroutine; external inputs arrive as posted events.
type Session struct {
	id       string
	role     Role
	selfID   string
	selfName string

	constraints Constraints
	deps        sessionDeps

	mu                sync.Mutex
	state             State
	negotiation       NegotiationState
	reason            EndReason
	remoteID          string
	remoteName        string
	localDescSent     bool
	remoteDescApplied bool
	accepting         bool
	bufferedOffer     string
	pendingRemote     []json.RawMessage
	pendingLocal      []json.RawMessage
	probes            int

	pipeline    Pipeline
	media       LocalMedia
	answerTimer *time.Timer
	probeTimer  *time.Timer

	events chan event
	done   chan struct{}
	setup  sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func newSession(id string, role Role, selfID, selfName, remoteID, remoteName string, constraints Constraints, deps sessionDeps) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:          id,
		role:        role,
		selfID:      selfID,
		selfName:    selfName,
		remoteID:    remoteID,
		remoteName:  remoteName,
		constraints: constraints,
		deps:        deps,
		events:      make(chan event, eventQueueSize),
		done:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (s *Session) ID() string         { return s.id }
func (s *Session) Role() Role         { return s.role }
func (s *Session) RemoteID() string   { return s.remoteID }
func (s *Session) RemoteName() string { return s.remoteName }

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reason reports why the session ended; ReasonNone before StateEnded.
func (s *Session) Reason() EndReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Done is closed once the session has reached StateEnded and finished
// local cleanup.
func (s *Session) Done() <-chan struct{} { return s.done }

// Accept answers an incoming call. Local media is acquired now, not at
// ring time.
func (s *Session) Accept() { s.post(evAccept{}) }

// Reject declines an incoming call without ever touching capture devices.
func (s *Session) Reject() { s.post(evReject{}) }

// Hangup ends the call from the local side.
func (s *Session) Hangup() { s.post(evHangup{}) }

// post delivers ev to the session worker. Returns false once the session
// has ended; late async completions use that to clean up what they built.
func (s *Session) post(ev event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// run is the session worker: the one goroutine that executes transitions.
func (s *Session) run() {
	for ev := range s.events {
		s.step(ev)
		if s.State() == StateEnded {
			close(s.done)
			s.reap()
			return
		}
	}
}

// reap runs after the ending transition. A setup goroutine can win the
// race in post and park its completion event in the queue just as the
// worker exits; waiting for setup and draining here releases whatever
// those events carry.
func (s *Session) reap() {
	s.setup.Wait()
	for {
		select {
		case ev := <-s.events:
			s.execute(releaseUnclaimed(ev))
		default:
			return
		}
	}
}

// step runs one transition plus its effects. Only the worker goroutine
// (and tests, which drive a session synchronously) call it.
func (s *Session) step(ev event) {
	s.mu.Lock()
	effs := s.transition(ev)
	s.mu.Unlock()
	s.execute(effs)
}

// adopt installs the pipeline and media built by an async setup goroutine.
// Called from transition, under the session lock.
func (s *Session) adopt(p Pipeline, m LocalMedia) {
	if p != nil {
		s.pipeline = p
	}
	if m != nil {
		s.media = m
	}
}

func (s *Session) execute(effs []effect) {
	for _, eff := range effs {
		switch e := eff.(type) {
		case effStartOutbound:
			s.setup.Add(1)
			go func() {
				defer s.setup.Done()
				s.startOutbound()
			}()
		case effStartAnswer:
			sdp := e.OfferSDP
			s.setup.Add(1)
			go func() {
				defer s.setup.Done()
				s.startAnswer(sdp)
			}()
		case effSendInvite:
			s.send(models.Envelope{
				Kind:        models.KindCallInvite,
				CallID:      s.id,
				From:        s.selfID,
				To:          s.remoteID,
				DisplayName: s.selfName,
				Payload:     models.EncodePayload(models.OfferPayload{SDP: e.SDP}),
			})
		case effSendAnswer:
			s.send(models.Envelope{
				Kind:    models.KindCallAnswer,
				CallID:  s.id,
				From:    s.selfID,
				To:      s.remoteID,
				Payload: models.EncodePayload(models.AnswerPayload{SDP: e.SDP}),
			})
		case effSendCandidate:
			s.sendCandidate(e.Candidate)
		case effSendReject:
			s.send(models.Envelope{
				Kind: models.KindCallReject, CallID: s.id, From: s.selfID, To: s.remoteID,
			})
		case effApplyAnswer:
			if err := s.pipeline.SetRemoteDescription(e.SDP); err != nil {
				s.step(evNegotiationFailed{Err: err})
				return
			}
		case effApplyCandidate:
			if err := s.pipeline.AddICECandidate(e.Candidate); err != nil {
				log.Printf("call %s: apply candidate: %v", s.id, err)
			}
		case effFlushRemoteCandidates:
			s.flushRemoteCandidates()
		case effFlushLocalCandidates:
			s.flushLocalCandidates()
		case effArmAnswerTimer:
			s.answerTimer = time.AfterFunc(answerTimeout, func() {
				s.post(evAnswerTimeout{})
			})
		case effCancelAnswerTimer:
			if s.answerTimer != nil {
				s.answerTimer.Stop()
				s.answerTimer = nil
			}
		case effArmReconnectProbe:
			s.probeTimer = time.AfterFunc(reconnectWait, func() {
				s.post(evReconnectProbe{})
			})
		case effCheckTransport:
			s.checkTransport()
		case effRing:
			if s.deps.onRing != nil {
				go s.deps.onRing(s)
			}
		case effNotify:
			if s.deps.onNotice != nil {
				go s.deps.onNotice(e.Notice)
			}
		case effRelease:
			if e.media != nil {
				e.media.Stop()
			}
			if e.pipeline != nil {
				if err := e.pipeline.Close(); err != nil {
					log.Printf("call %s: close unclaimed transport: %v", s.id, err)
				}
			}
		case effTeardown:
			s.teardown(e.SendEnd)
		}
	}
}

// startOutbound acquires local media and builds the offer off the worker
// goroutine; acquisition may block on an OS permission prompt.
func (s *Session) startOutbound() {
	media, err := acquireMedia(s.ctx, s.deps.devices, s.constraints)
	if err != nil {
		s.post(evMediaFailed{Err: err})
		return
	}
	pipeline, sdp, err := s.buildPipeline(media, "")
	if err != nil {
		media.Stop()
		s.post(evNegotiationFailed{Err: err})
		return
	}
	if !s.post(evOfferReady{SDP: sdp, pipeline: pipeline, media: media}) {
		// Session ended while we were setting up (e.g. hangup during
		// the permission prompt): nothing owns these yet.
		media.Stop()
		pipeline.Close()
	}
}

// startAnswer acquires media and answers the buffered offer. Runs off the
// worker goroutine for the same reason as startOutbound.
func (s *Session) startAnswer(offerSDP string) {
	media, err := acquireMedia(s.ctx, s.deps.devices, s.constraints)
	if err != nil {
		s.post(evMediaFailed{Err: err})
		return
	}
	pipeline, sdp, err := s.buildPipeline(media, offerSDP)
	if err != nil {
		media.Stop()
		s.post(evNegotiationFailed{Err: err})
		return
	}
	if !s.post(evAnswerReady{SDP: sdp, pipeline: pipeline, media: media}) {
		media.Stop()
		pipeline.Close()
	}
}

// buildPipeline creates the transport, attaches media, and produces the
// local description: an offer when offerSDP is empty, otherwise an answer
// to it.
func (s *Session) buildPipeline(media LocalMedia, offerSDP string) (Pipeline, string, error) {
	pipeline, err := s.deps.newPipeline(PipelineEvents{
		OnLocalCandidate: func(c json.RawMessage) {
			s.post(evLocalCandidate{Candidate: c})
		},
		OnRemoteTrack: func(t RemoteTrack) {
			log.Printf("call %s: remote %s track %s", s.id, t.Kind, t.ID)
		},
		OnTransportStateChanged: func(st TransportState) {
			s.post(evTransportState{State: st})
		},
	})
	if err != nil {
		return nil, "", err
	}
	if err := pipeline.AddLocalMedia(media); err != nil {
		pipeline.Close()
		return nil, "", err
	}
	var sdp string
	if offerSDP == "" {
		sdp, err = pipeline.CreateOffer()
	} else {
		sdp, err = pipeline.CreateAnswer(offerSDP)
	}
	if err != nil {
		pipeline.Close()
		return nil, "", err
	}
	return pipeline, sdp, nil
}

func (s *Session) flushRemoteCandidates() {
	s.mu.Lock()
	buffered := s.pendingRemote
	s.pendingRemote = nil
	s.mu.Unlock()
	// Applied in receipt order, each exactly once.
	for _, c := range buffered {
		if err := s.pipeline.AddICECandidate(c); err != nil {
			log.Printf("call %s: apply buffered candidate: %v", s.id, err)
		}
	}
}

func (s *Session) flushLocalCandidates() {
	s.mu.Lock()
	buffered := s.pendingLocal
	s.pendingLocal = nil
	s.mu.Unlock()
	for _, c := range buffered {
		s.sendCandidate(c)
	}
}

func (s *Session) sendCandidate(c json.RawMessage) {
	s.send(models.Envelope{
		Kind:    models.KindICECandidate,
		CallID:  s.id,
		From:    s.selfID,
		To:      s.remoteID,
		Payload: models.EncodePayload(models.CandidatePayload{Candidate: c}),
	})
}

func (s *Session) send(env models.Envelope) {
	if err := s.deps.signaler.Send(env); err != nil {
		log.Printf("call %s: send %s: %v", s.id, env.Kind, err)
	}
}

// checkTransport is the reconnection liveness re-check. Recovery is a
// no-op; a transport that stays disconnected is re-probed until the bound
// is hit, then treated as failed.
func (s *Session) checkTransport() {
	state := s.pipeline.TransportState()
	switch state {
	case TransportConnected:
		s.step(evTransportState{State: TransportConnected})
	case TransportFailed, TransportClosed:
		s.step(evTransportState{State: TransportFailed})
	default:
		s.mu.Lock()
		exhausted := s.probes >= maxReconnectProbes
		s.mu.Unlock()
		if exhausted {
			s.step(evTransportState{State: TransportFailed})
			return
		}
		s.probeTimer = time.AfterFunc(reconnectWait, func() {
			s.post(evReconnectProbe{})
		})
	}
}

// teardown releases everything the session owns. By the time it returns no
// timer can fire again, no device handle is open, and the transport is
// closed; the notify to the remote peer (when owed) went out first.
func (s *Session) teardown(sendEnd bool) {
	if sendEnd {
		s.send(models.Envelope{
			Kind: models.KindCallEnd, CallID: s.id, From: s.selfID, To: s.remoteID,
		})
	}
	if s.answerTimer != nil {
		s.answerTimer.Stop()
		s.answerTimer = nil
	}
	if s.probeTimer != nil {
		s.probeTimer.Stop()
		s.probeTimer = nil
	}
	if s.media != nil {
		s.media.Stop()
		s.media = nil
	}
	if s.pipeline != nil {
		if err := s.pipeline.Close(); err != nil {
			log.Printf("call %s: close transport: %v", s.id, err)
		}
		s.pipeline = nil
	}
	s.cancel()
	if s.deps.onDone != nil {
		s.deps.onDone(s)
	}
}

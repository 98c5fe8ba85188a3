// Package call implements the per-client call state machine: one session
// per active or pending call, driven by relay envelopes, UI actions, and
// media-pipeline events, all serialized onto a session worker.
package call

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/LightningMCquen/Fullstack-chat-VC-app/internal/models"
)

// Signaler sends envelopes to the relay over the established channel.
type Signaler interface {
	Send(env models.Envelope) error
}

// ErrBusy is returned when an outbound call is attempted while another
// call is active or pending.
var ErrBusy = errors.New("another call is already in progress")

// IncomingCall is surfaced to the UI when a call-invite arrives.
type IncomingCall struct {
	CallID      string
	From        string
	DisplayName string
	Session     *Session
}

// Config carries the local identity and capture preferences.
type Config struct {
	SelfID      string
	SelfName    string
	Constraints Constraints
}

// Manager owns the single active session and routes inbound envelopes to
// it. Envelopes whose call id does not match the active session are
// dropped; a second invite while busy is rejected, never merged.
type Manager struct {
	cfg         Config
	signaler    Signaler
	devices     MediaDevices
	newPipeline PipelineFactory

	mu     sync.Mutex
	active *Session
	online []string

	onIncoming func(IncomingCall)
	onNotice   func(Notice)
	onPresence func([]string)
}

func NewManager(cfg Config, signaler Signaler, devices MediaDevices, newPipeline PipelineFactory) *Manager {
	return &Manager{
		cfg:         cfg,
		signaler:    signaler,
		devices:     devices,
		newPipeline: newPipeline,
	}
}

// OnIncoming registers the ring handler. It is invoked off the session
// worker; Accept/Reject on the session are safe to call from it.
func (m *Manager) OnIncoming(fn func(IncomingCall)) { m.onIncoming = fn }

// OnNotice registers the handler for user-visible, dismissible notices.
func (m *Manager) OnNotice(fn func(Notice)) { m.onNotice = fn }

// OnPresence registers the handler for online-set updates.
func (m *Manager) OnPresence(fn func([]string)) { m.onPresence = fn }

// Invite starts an outbound call to remoteID. The call id generated here
// tags every envelope of the session on both sides.
func (m *Manager) Invite(remoteID, remoteName string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return nil, ErrBusy
	}
	s := m.newSession(uuid.New().String(), RoleInitiator, remoteID, remoteName)
	m.active = s
	go s.run()
	s.post(evStartOutbound{})
	return s, nil
}

// Active returns the current session, or nil.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Online returns the last presence snapshot received from the relay.
func (m *Manager) Online() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.online...)
}

// Dispatch routes one envelope from the signaling channel. Called from the
// channel read loop.
func (m *Manager) Dispatch(env models.Envelope) {
	switch env.Kind {
	case models.KindPresenceSnapshot:
		m.handleSnapshot(env)
	case models.KindCallInvite:
		m.handleInvite(env)
	case models.KindCallAnswer:
		var p models.AnswerPayload
		m.toActive(env, func() event {
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				return evNegotiationFailed{Err: fmt.Errorf("malformed answer: %w", err)}
			}
			return evRemoteAnswer{SDP: p.SDP}
		})
	case models.KindICECandidate:
		var p models.CandidatePayload
		m.toActive(env, func() event {
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				log.Printf("call: malformed candidate from %s", env.From)
				return nil
			}
			return evRemoteCandidate{Candidate: p.Candidate}
		})
	case models.KindCallEnd:
		m.toActive(env, func() event { return evRemoteEnd{} })
	case models.KindCallReject:
		m.toActive(env, func() event { return evRemoteReject{} })
	case models.KindCallFailed:
		var p models.FailedPayload
		m.toActive(env, func() event {
			_ = json.Unmarshal(env.Payload, &p)
			return evCallFailed{Reason: p.Reason}
		})
	default:
		log.Printf("call: unknown envelope kind %q", env.Kind)
	}
}

// ChannelLost tears down the active call locally: with the channel gone
// the relay is unreachable and no call-end can be delivered.
func (m *Manager) ChannelLost() {
	m.mu.Lock()
	s := m.active
	m.mu.Unlock()
	if s != nil {
		s.post(evChannelLost{})
	}
}

// Close hangs up the active call, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	s := m.active
	m.mu.Unlock()
	if s != nil {
		s.Hangup()
		<-s.Done()
	}
}

func (m *Manager) handleSnapshot(env models.Envelope) {
	var p models.SnapshotPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}
	m.mu.Lock()
	m.online = p.Online
	m.mu.Unlock()
	if m.onPresence != nil {
		m.onPresence(p.Online)
	}
}

func (m *Manager) handleInvite(env models.Envelope) {
	m.mu.Lock()
	if m.active != nil {
		m.mu.Unlock()
		// Busy: reject under the incoming call id so the caller's
		// session ends cleanly. The active call is never clobbered.
		log.Printf("call: rejecting invite from %s while busy", env.From)
		m.send(models.Envelope{
			Kind: models.KindCallReject, CallID: env.CallID, From: m.cfg.SelfID, To: env.From,
		})
		return
	}
	var p models.OfferPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		m.mu.Unlock()
		// Reject instead of dropping so the caller fails fast rather
		// than waiting out the answer timeout.
		log.Printf("call: rejecting malformed invite from %s", env.From)
		m.send(models.Envelope{
			Kind: models.KindCallReject, CallID: env.CallID, From: m.cfg.SelfID, To: env.From,
		})
		return
	}
	// The callee adopts the caller's call id.
	s := m.newSession(env.CallID, RoleReceiver, env.From, env.DisplayName)
	m.active = s
	m.mu.Unlock()
	go s.run()
	s.post(evIncomingInvite{From: env.From, DisplayName: env.DisplayName, SDP: p.SDP})
}

// toActive delivers an event to the active session if the envelope's call
// id matches it; anything else is stale and dropped.
func (m *Manager) toActive(env models.Envelope, mk func() event) {
	m.mu.Lock()
	s := m.active
	m.mu.Unlock()
	if s == nil || s.id != env.CallID {
		log.Printf("call: dropping %s for unknown call %s", env.Kind, env.CallID)
		return
	}
	if ev := mk(); ev != nil {
		s.post(ev)
	}
}

func (m *Manager) newSession(id string, role Role, remoteID, remoteName string) *Session {
	return newSession(id, role, m.cfg.SelfID, m.cfg.SelfName, remoteID, remoteName, m.cfg.Constraints, sessionDeps{
		signaler:    m.signaler,
		devices:     m.devices,
		newPipeline: m.newPipeline,
		onRing: func(s *Session) {
			if m.onIncoming != nil {
				m.onIncoming(IncomingCall{
					CallID:      s.id,
					From:        s.remoteID,
					DisplayName: s.remoteName,
					Session:     s,
				})
			}
		},
		onNotice: func(n Notice) {
			if m.onNotice != nil {
				m.onNotice(n)
			}
		},
		onDone: m.sessionEnded,
	})
}

func (m *Manager) sessionEnded(s *Session) {
	m.mu.Lock()
	if m.active == s {
		m.active = nil
	}
	m.mu.Unlock()
}

func (m *Manager) send(env models.Envelope) {
	if err := m.signaler.Send(env); err != nil {
		log.Printf("call: send %s: %v", env.Kind, err)
	}
}

package call

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/LightningMCquen/Fullstack-chat-VC-app/internal/models"
)

type fakeSignaler struct {
	mu   sync.Mutex
	sent []models.Envelope
}

func (f *fakeSignaler) Send(env models.Envelope) error {
	f.mu.Lock()
	f.sent = append(f.sent, env)
	f.mu.Unlock()
	return nil
}

func (f *fakeSignaler) ofKind(kind models.Kind) []models.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Envelope
	for _, env := range f.sent {
		if env.Kind == kind {
			out = append(out, env)
		}
	}
	return out
}

func (f *fakeSignaler) kinds() []models.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Kind, len(f.sent))
	for i, env := range f.sent {
		out[i] = env.Kind
	}
	return out
}

type fakeMedia struct {
	mu      sync.Mutex
	stopped bool
}

func (f *fakeMedia) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeMedia) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// fakeDevices pops one scripted error per Acquire call; a nil entry (or an
// exhausted script) yields a fresh fakeMedia.
type fakeDevices struct {
	mu          sync.Mutex
	script      []error
	acquired    []*fakeMedia
	constraints []Constraints
}

func (f *fakeDevices) Acquire(_ context.Context, c Constraints) (LocalMedia, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constraints = append(f.constraints, c)
	var err error
	if len(f.script) > 0 {
		err = f.script[0]
		f.script = f.script[1:]
	}
	if err != nil {
		return nil, err
	}
	m := &fakeMedia{}
	f.acquired = append(f.acquired, m)
	return m, nil
}

func (f *fakeDevices) allMedia() []*fakeMedia {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeMedia(nil), f.acquired...)
}

func (f *fakeDevices) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.constraints)
}

type fakePipeline struct {
	mu            sync.Mutex
	events        PipelineEvents
	remoteOffer   string
	remoteAnswer  string
	applied       []string
	mediaAttached bool
	closed        bool
	transport     TransportState

	failSetRemote error
}

func (f *fakePipeline) CreateOffer() (string, error) { return "offer-sdp", nil }

func (f *fakePipeline) CreateAnswer(remoteOffer string) (string, error) {
	f.mu.Lock()
	f.remoteOffer = remoteOffer
	f.mu.Unlock()
	return "answer-sdp", nil
}

func (f *fakePipeline) SetRemoteDescription(answerSDP string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSetRemote != nil {
		return f.failSetRemote
	}
	f.remoteAnswer = answerSDP
	return nil
}

func (f *fakePipeline) getRemoteOffer() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remoteOffer
}

func (f *fakePipeline) getRemoteAnswer() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remoteAnswer
}

func (f *fakePipeline) AddICECandidate(candidate json.RawMessage) error {
	f.mu.Lock()
	f.applied = append(f.applied, string(candidate))
	f.mu.Unlock()
	return nil
}

func (f *fakePipeline) AddLocalMedia(LocalMedia) error {
	f.mu.Lock()
	f.mediaAttached = true
	f.mu.Unlock()
	return nil
}

func (f *fakePipeline) TransportState() TransportState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transport
}

func (f *fakePipeline) setTransport(st TransportState) {
	f.mu.Lock()
	f.transport = st
	f.mu.Unlock()
}

func (f *fakePipeline) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakePipeline) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakePipeline) appliedCandidates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.applied...)
}

type fakeFactory struct {
	mu      sync.Mutex
	created []*fakePipeline
}

func (f *fakeFactory) New(events PipelineEvents) (Pipeline, error) {
	p := &fakePipeline{events: events, transport: TransportNew}
	f.mu.Lock()
	f.created = append(f.created, p)
	f.mu.Unlock()
	return p, nil
}

func (f *fakeFactory) last() *fakePipeline {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

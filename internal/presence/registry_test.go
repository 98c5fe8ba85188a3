package presence

import (
	"reflect"
	"testing"

	"github.com/LightningMCquen/Fullstack-chat-VC-app/internal/models"
)

type fakeEndpoint struct {
	identity string
}

func (f *fakeEndpoint) Identity() string             { return f.identity }
func (f *fakeEndpoint) Deliver(models.Envelope) bool { return true }

func TestRegistry_LastConnectWins(t *testing.T) {
	r := NewRegistry()
	first := &fakeEndpoint{identity: "alice"}
	second := &fakeEndpoint{identity: "alice"}

	r.Register("alice", first)
	r.Register("alice", second)

	got, ok := r.Lookup("alice")
	if !ok {
		t.Fatalf("expected alice to be online")
	}
	if got != Endpoint(second) {
		t.Fatalf("expected most recent endpoint to win")
	}
}

func TestRegistry_UnregisterRemovesMapping(t *testing.T) {
	r := NewRegistry()
	ep := &fakeEndpoint{identity: "bob"}

	r.Register("bob", ep)
	r.Unregister("bob", ep)

	if _, ok := r.Lookup("bob"); ok {
		t.Fatalf("expected bob to be offline after unregister")
	}

	// Unregister of an absent identity is a no-op.
	r.Unregister("bob", ep)
}

func TestRegistry_StaleUnregisterDoesNotEvictNewerEndpoint(t *testing.T) {
	r := NewRegistry()
	old := &fakeEndpoint{identity: "carol"}
	replacement := &fakeEndpoint{identity: "carol"}

	r.Register("carol", old)
	r.Register("carol", replacement)
	r.Unregister("carol", old) // delayed cleanup of the displaced connection

	got, ok := r.Lookup("carol")
	if !ok {
		t.Fatalf("expected carol to remain online")
	}
	if got != Endpoint(replacement) {
		t.Fatalf("stale unregister evicted the replacement endpoint")
	}
}

func TestRegistry_OnlineSorted(t *testing.T) {
	r := NewRegistry()
	r.Register("zed", &fakeEndpoint{identity: "zed"})
	r.Register("amy", &fakeEndpoint{identity: "amy"})
	r.Register("mel", &fakeEndpoint{identity: "mel"})

	want := []string{"amy", "mel", "zed"}
	if got := r.Online(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Online() = %v, want %v", got, want)
	}
}

func TestRegistry_LookupSequence(t *testing.T) {
	// For any register/unregister sequence the lookup result equals the
	// endpoint of the most recent register, or absent after unregister.
	r := NewRegistry()
	a := &fakeEndpoint{identity: "dave"}
	b := &fakeEndpoint{identity: "dave"}

	steps := []struct {
		op     func()
		online bool
		want   Endpoint
	}{
		{func() { r.Register("dave", a) }, true, a},
		{func() { r.Register("dave", b) }, true, b},
		{func() { r.Unregister("dave", b) }, false, nil},
		{func() { r.Register("dave", a) }, true, a},
	}
	for i, s := range steps {
		s.op()
		got, ok := r.Lookup("dave")
		if ok != s.online {
			t.Fatalf("step %d: online = %v, want %v", i, ok, s.online)
		}
		if ok && got != s.want {
			t.Fatalf("step %d: wrong endpoint", i)
		}
	}
}

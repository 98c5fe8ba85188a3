package call

import (
	"context"
	"errors"
	"testing"
)

func TestAcquireMedia_OverconstrainedRetriesOnceRelaxed(t *testing.T) {
	dev := &fakeDevices{script: []error{ErrOverconstrained, nil}}

	media, err := acquireMedia(context.Background(), dev, Constraints{Audio: true, Video: true, HighQuality: true})
	if err != nil {
		t.Fatalf("expected relaxed retry to succeed, got %v", err)
	}
	if media == nil {
		t.Fatalf("no media returned")
	}
	if dev.attempts() != 2 {
		t.Fatalf("attempts = %d, want 2", dev.attempts())
	}
	if !dev.constraints[0].HighQuality {
		t.Fatalf("first attempt did not use the requested constraints")
	}
	if dev.constraints[1].HighQuality {
		t.Fatalf("retry did not relax the constraints")
	}
}

func TestAcquireMedia_OverconstrainedTwiceIsTerminal(t *testing.T) {
	dev := &fakeDevices{script: []error{ErrOverconstrained, ErrOverconstrained}}

	_, err := acquireMedia(context.Background(), dev, Constraints{Video: true, HighQuality: true})
	if !errors.Is(err, ErrOverconstrained) {
		t.Fatalf("err = %v, want overconstrained", err)
	}
	if dev.attempts() != maxMediaAttempts {
		t.Fatalf("attempts = %d, want %d", dev.attempts(), maxMediaAttempts)
	}
}

func TestAcquireMedia_NoAutomaticRetryForTerminalClasses(t *testing.T) {
	for _, tc := range []error{ErrPermissionDenied, ErrDeviceBusy, ErrDeviceNotFound, ErrUnsupported} {
		dev := &fakeDevices{script: []error{tc}}
		_, err := acquireMedia(context.Background(), dev, Constraints{Audio: true})
		if !errors.Is(err, tc) {
			t.Fatalf("err = %v, want %v", err, tc)
		}
		if dev.attempts() != 1 {
			t.Fatalf("%v: attempts = %d, want 1 (no auto-retry)", tc, dev.attempts())
		}
	}
}

func TestMediaFailure_EndsSessionWithNotice(t *testing.T) {
	f := newFixture(RoleInitiator)

	f.s.step(evMediaFailed{Err: ErrPermissionDenied})

	if got := f.s.Reason(); got != ReasonMediaError {
		t.Fatalf("reason = %q, want %q", got, ReasonMediaError)
	}
	waitFor(t, "media error notice", func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.notices) == 1 && f.notices[0].Level == NoticeError
	})
}

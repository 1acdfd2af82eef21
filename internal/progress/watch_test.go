package progress

import (
	"context"
	"testing"
	"time"
)

func TestWatch(t *testing.T) {
	env := newTestEnv(t)
	ledger := env.ledger()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Bootstrap first so the watched directory exists.
	if _, err := env.dirs.Dir(ctx); err != nil {
		t.Fatal(err)
	}

	snapshots := make(chan *Progress, 16)
	done := make(chan error, 1)
	go func() {
		done <- ledger.Watch(ctx, func(p *Progress) { snapshots <- p.Clone() })
	}()

	next := func() *Progress {
		t.Helper()
		select {
		case p := <-snapshots:
			return p
		case err := <-done:
			t.Fatalf("Watch() returned early: %v", err)
		case <-ctx.Done():
			t.Fatal("timed out waiting for a snapshot")
		}
		return nil
	}

	if p := next(); p.CurrentStep != 0 {
		t.Errorf("initial snapshot = %+v, want default", p)
	}

	if _, err := ledger.Update(ctx, Update{Step: ptr(2)}); err != nil {
		t.Fatal(err)
	}
	for {
		p := next()
		if p.CurrentStep == 2 {
			break
		}
	}

	if err := ledger.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	for {
		p := next()
		if p.CurrentStep == 0 && len(p.StepsCompleted) == 0 {
			break
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch() did not stop after cancel")
	}
}

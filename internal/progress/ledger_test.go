package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/wtstate/internal/errors"
	"github.com/Iron-Ham/wtstate/internal/logging"
	"github.com/Iron-Ham/wtstate/internal/statedir"
	"github.com/Iron-Ham/wtstate/internal/vcs"
	"github.com/Iron-Ham/wtstate/internal/worktree"
)

func ptr[T any](v T) *T { return &v }

// testEnv is a fake worktree with a ledger over it.
type testEnv struct {
	root     string
	stateDir string
	id       string
	dirs     *statedir.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".git"), 0755); err != nil {
		t.Fatal(err)
	}
	dirs := statedir.New(worktree.NewResolver(&vcs.Fake{Root: root, Branch: "main"}))
	return &testEnv{
		root:     root,
		stateDir: filepath.Join(root, statedir.DefaultDirName),
		id:       worktree.ComputeID(root),
		dirs:     dirs,
	}
}

func (e *testEnv) ledger(opts ...Option) *Ledger {
	return NewLedger(e.dirs, opts...)
}

func (e *testEnv) progressPath() string {
	return filepath.Join(e.stateDir, statedir.ProgressFile)
}

func TestRead_Default(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.ledger().Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if p.WorktreeID != env.id || p.CurrentStep != 0 || len(p.StepsCompleted) != 0 ||
		len(p.Artifacts) != 0 || p.LastUpdated != nil {
		t.Errorf("Read() = %+v, want default document", p)
	}
	if _, err := os.Stat(env.progressPath()); !os.IsNotExist(err) {
		t.Error("Read() must not create the progress file")
	}
}

func TestUpdate_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ledger := env.ledger()
	ctx := context.Background()

	if _, err := ledger.Update(ctx, Update{Step: ptr(3), Artifact: ptr("specs/x/plan.md")}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	p, err := ledger.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if p.CurrentStep != 3 || !p.IsStepCompleted(3) || p.Artifacts["step_3"] != "specs/x/plan.md" {
		t.Errorf("Read() = %+v", p)
	}
	if p.WorktreeID != env.id || p.LastUpdated == nil {
		t.Errorf("worktree_id/last_updated not refreshed: %+v", p)
	}

	raw, err := os.ReadFile(env.progressPath())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(raw, []byte("{\n  \"")) {
		t.Errorf("document should be pretty-printed, got %q", raw[:min(len(raw), 20)])
	}
}

func TestUpdate_StepIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ledger := env.ledger()
	ctx := context.Background()

	for range 2 {
		if _, err := ledger.Update(ctx, Update{Step: ptr(3)}); err != nil {
			t.Fatal(err)
		}
	}
	p, _ := ledger.Read(ctx)
	if len(p.StepsCompleted) != 1 || p.StepsCompleted[0] != 3 {
		t.Errorf("StepsCompleted = %v, want [3]", p.StepsCompleted)
	}
}

func TestUpdate_StepsSorted(t *testing.T) {
	env := newTestEnv(t)
	ledger := env.ledger()
	ctx := context.Background()

	for _, s := range []int{4, 1, 3} {
		if _, err := ledger.Update(ctx, Update{Step: ptr(s)}); err != nil {
			t.Fatal(err)
		}
	}
	p, _ := ledger.Read(ctx)
	if p.CurrentStep != 3 {
		t.Errorf("CurrentStep = %d, want 3", p.CurrentStep)
	}
	if got := p.StepsCompleted; len(got) != 3 || got[0] != 1 || got[1] != 3 || got[2] != 4 {
		t.Errorf("StepsCompleted = %v, want [1 3 4]", got)
	}
}

func TestUpdate_UnlabelledArtifactsDoNotOverwrite(t *testing.T) {
	env := newTestEnv(t)
	ledger := env.ledger()
	ctx := context.Background()

	for _, a := range []string{"a.md", "b.md", "c.md"} {
		if _, err := ledger.Update(ctx, Update{Artifact: ptr(a)}); err != nil {
			t.Fatal(err)
		}
	}
	p, _ := ledger.Read(ctx)
	want := map[string]string{"artifact_0": "a.md", "artifact_1": "b.md", "artifact_2": "c.md"}
	for k, v := range want {
		if p.Artifacts[k] != v {
			t.Errorf("Artifacts[%s] = %q, want %q", k, p.Artifacts[k], v)
		}
	}
}

func TestUpdate_OptionalAndExtensionFields(t *testing.T) {
	env := newTestEnv(t)
	ledger := env.ledger()
	ctx := context.Background()

	_, err := ledger.Update(ctx, Update{
		FeatureBranch: ptr("feature/login"),
		SessionID:     ptr("sess-1"),
		Fields:        map[string]any{"gate": map[string]any{"passed": true}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ledger.Update(ctx, Update{Step: ptr(1)}); err != nil {
		t.Fatal(err)
	}

	p, _ := ledger.Read(ctx)
	if p.FeatureBranch != "feature/login" || p.SessionID != "sess-1" {
		t.Errorf("optional fields = %q, %q", p.FeatureBranch, p.SessionID)
	}
	var gate struct{ Passed bool }
	if ok, err := p.Field("gate", &gate); !ok || err != nil || !gate.Passed {
		t.Errorf("extension field not preserved: ok=%v err=%v gate=%+v", ok, err, gate)
	}
}

func TestUpdate_RejectsBeforeSideEffects(t *testing.T) {
	tests := []struct {
		name string
		u    Update
	}{
		{"reserved key", Update{Fields: map[string]any{"current_step": 9}}},
		{"empty key", Update{Fields: map[string]any{"": 1}}},
		{"unencodable value", Update{Fields: map[string]any{"ch": make(chan int)}}},
		{"negative step", Update{Step: ptr(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.ledger().Update(context.Background(), tt.u)
			if !errors.Is(err, errors.ErrInvalidInput) {
				t.Fatalf("Update() error = %v, want validation error", err)
			}
			if _, err := os.Stat(env.stateDir); !os.IsNotExist(err) {
				t.Error("state directory created despite invalid input")
			}
		})
	}
}

func TestRead_CorruptedFile(t *testing.T) {
	env := newTestEnv(t)
	var logs bytes.Buffer
	ledger := env.ledger(WithLogger(logging.NewLoggerWithWriter(&logs, logging.LevelWarn)))
	ctx := context.Background()

	if _, err := env.dirs.Dir(ctx); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(env.progressPath(), []byte(`{"current_step": 2, "steps_`), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := ledger.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v, want fallback", err)
	}
	if p.CurrentStep != 0 || len(p.StepsCompleted) != 0 || len(p.Artifacts) != 0 {
		t.Errorf("Read() = %+v, want default", p)
	}
	if !strings.Contains(logs.String(), "corrupted progress file") {
		t.Errorf("expected a warning, logs = %q", logs.String())
	}

	// An update over a corrupted file starts from the default document.
	p, err = ledger.Update(ctx, Update{Step: ptr(1)})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.StepsCompleted) != 1 {
		t.Errorf("StepsCompleted = %v", p.StepsCompleted)
	}
}

func TestUpdate_KeepsHandWrittenDocument(t *testing.T) {
	env := newTestEnv(t)
	var logs bytes.Buffer
	ledger := env.ledger(WithLogger(logging.NewLoggerWithWriter(&logs, logging.LevelWarn)))
	ctx := context.Background()

	if _, err := env.dirs.Dir(ctx); err != nil {
		t.Fatal(err)
	}
	doc := `{
  "current_step": 2,
  "steps_completed": [1, 2],
  "artifacts": {"step_1": "spec.md", "step_2": "plan.md"},
  "last_updated": "2025-11-23T10:00:00",
  "session_id": 17,
  "notes": "keep me"
}`
	if err := os.WriteFile(env.progressPath(), []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := ledger.Update(ctx, Update{Step: ptr(3)})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got := p.StepsCompleted; len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("StepsCompleted = %v, want [1 2 3]", got)
	}
	if p.Artifacts["step_1"] != "spec.md" || p.Artifacts["step_2"] != "plan.md" {
		t.Errorf("Artifacts = %v", p.Artifacts)
	}
	var notes string
	if ok, err := p.Field("notes", &notes); !ok || err != nil || notes != "keep me" {
		t.Errorf("notes = %q, %v, %v", notes, ok, err)
	}
	if strings.Contains(logs.String(), "corrupted progress file") {
		t.Errorf("a readable document was treated as corrupted: %q", logs.String())
	}
	if !strings.Contains(logs.String(), "session_id") {
		t.Errorf("expected a warning naming the unusable field, logs = %q", logs.String())
	}

	again, err := ledger.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if again.CurrentStep != 3 || len(again.StepsCompleted) != 3 || len(again.IgnoredFields()) != 0 {
		t.Errorf("Read() after update = %+v", again)
	}
}

func TestRead_IgnoresInterruptedWrite(t *testing.T) {
	env := newTestEnv(t)
	ledger := env.ledger()
	ctx := context.Background()

	if _, err := ledger.Update(ctx, Update{Step: ptr(2), Artifact: ptr("plan.md")}); err != nil {
		t.Fatal(err)
	}

	// A crash between write and rename leaves a truncated temp file behind.
	leftover := filepath.Join(env.stateDir, ".workflow-12345.tmp")
	if err := os.WriteFile(leftover, []byte(`{"current_step": 3, "ste`), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := ledger.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if p.CurrentStep != 2 || p.Artifacts["step_2"] != "plan.md" {
		t.Errorf("Read() = %+v, want last committed document", p)
	}

	if _, err := ledger.Update(ctx, Update{Step: ptr(3)}); err != nil {
		t.Fatal(err)
	}
	p, _ = ledger.Read(ctx)
	if p.CurrentStep != 3 || !p.IsStepCompleted(2) {
		t.Errorf("update after interrupted write = %+v", p)
	}
}

func TestUpdate_WriteFailureKeepsPrevious(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	env := newTestEnv(t)
	ledger := env.ledger(WithLocking(false, 0))
	ctx := context.Background()

	if _, err := ledger.Update(ctx, Update{Step: ptr(1)}); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(env.progressPath())

	if err := os.Chmod(env.stateDir, 0555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(env.stateDir, 0755) })

	_, err := ledger.Update(ctx, Update{Step: ptr(2)})
	var stateErr *errors.StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("Update() error = %v, want StateError", err)
	}

	after, _ := os.ReadFile(env.progressPath())
	if !bytes.Equal(before, after) {
		t.Error("previous document changed after a failed write")
	}
	matches, _ := filepath.Glob(filepath.Join(env.stateDir, tempPattern))
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}

func TestClear(t *testing.T) {
	env := newTestEnv(t)
	ledger := env.ledger()
	ctx := context.Background()

	if err := ledger.Clear(ctx); err != nil {
		t.Fatalf("Clear() on empty ledger error = %v", err)
	}
	if _, err := ledger.Update(ctx, Update{Step: ptr(1)}); err != nil {
		t.Fatal(err)
	}
	if err := ledger.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if err := ledger.Clear(ctx); err != nil {
		t.Fatalf("second Clear() error = %v", err)
	}
	done, err := ledger.IsStepCompleted(ctx, 1)
	if err != nil || done {
		t.Errorf("IsStepCompleted(1) after clear = %v, %v", done, err)
	}
}

func TestEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ledger := env.ledger()
	ctx := context.Background()

	dir, err := env.dirs.Dir(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{statedir.GitignoreFile, statedir.IDMarkerFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s missing: %v", name, err)
		}
	}

	if _, err := ledger.Update(ctx, Update{Step: ptr(1), Artifact: ptr("specs/001/spec.md")}); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(env.progressPath())
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	if doc["current_step"] != float64(1) || doc["worktree_id"] != env.id {
		t.Errorf("document = %v", doc)
	}
	if steps, _ := doc["steps_completed"].([]any); len(steps) != 1 || steps[0] != float64(1) {
		t.Errorf("steps_completed = %v", doc["steps_completed"])
	}
	if arts, _ := doc["artifacts"].(map[string]any); arts["step_1"] != "specs/001/spec.md" {
		t.Errorf("artifacts = %v", doc["artifacts"])
	}
	if !hex12(env.id) {
		t.Errorf("worktree id %q is not 12 hex chars", env.id)
	}

	if err := ledger.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	p, err := ledger.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if p.CurrentStep != 0 || len(p.StepsCompleted) != 0 || len(p.Artifacts) != 0 || p.LastUpdated != nil {
		t.Errorf("Read() after Clear = %+v, want default", p)
	}
}

func hex12(s string) bool {
	if len(s) != 12 {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}

func TestUpdate_ConcurrentNoLostUpdates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const writers = 12
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 1; i <= writers; i++ {
		wg.Add(1)
		go func(step int) {
			defer wg.Done()
			// Separate ledgers open separate lock descriptors, as separate
			// processes would.
			ledger := env.ledger(WithLocking(true, 10*time.Second))
			if _, err := ledger.Update(ctx, Update{Step: ptr(step)}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Update() error = %v", err)
	}

	p, err := env.ledger().Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.StepsCompleted) != writers {
		t.Errorf("StepsCompleted = %v, want all %d steps", p.StepsCompleted, writers)
	}
}

func TestUpdate_UsesClock(t *testing.T) {
	env := newTestEnv(t)
	fixed := time.Date(2025, 11, 17, 2, 43, 49, 0, time.FixedZone("X", 3600))
	p, err := env.ledger(WithClock(func() time.Time { return fixed })).Update(context.Background(), Update{Step: ptr(1)})
	if err != nil {
		t.Fatal(err)
	}
	if !p.LastUpdated.Equal(fixed) || p.LastUpdated.Location() != time.UTC {
		t.Errorf("LastUpdated = %v, want %v in UTC", p.LastUpdated, fixed)
	}
	raw, _ := os.ReadFile(env.progressPath())
	if !strings.Contains(string(raw), `"last_updated": "2025-11-17T01:43:49Z"`) {
		t.Errorf("document = %s", raw)
	}
}

func TestLedger_NotARepository(t *testing.T) {
	ledger := NewLedger(statedir.New(worktree.NewResolver(&vcs.Fake{})))
	if _, err := ledger.Read(context.Background()); !errors.Is(err, errors.ErrNotGitRepository) {
		t.Errorf("Read() error = %v", err)
	}
	if _, err := ledger.Update(context.Background(), Update{Step: ptr(1)}); !errors.Is(err, errors.ErrNotGitRepository) {
		t.Errorf("Update() error = %v", err)
	}
}

package cmd

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/wtstate/internal/errors"
)

func TestReportError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		want     []string
		absent   []string
	}{
		{
			name:     "success",
			wantCode: ExitOK,
		},
		{
			name:     "validation",
			err:      errors.NewValidationError("step must be positive").WithField("step"),
			wantCode: ExitRefused,
			want:     []string{"Error: validation error [field=step]: step must be positive"},
			absent:   []string{"--help", "retry"},
		},
		{
			name:     "timeout",
			err:      errors.NewTimeoutError("git rev-parse", 5*time.Second),
			wantCode: ExitRefused,
			want:     []string{"timeout error", "retry the command"},
		},
		{
			name:     "store failure",
			err:      errors.NewStoreError("failed to record sync event", errors.New("disk full")),
			wantCode: ExitFailure,
			want:     []string{"failed to record sync event"},
			absent:   []string{"--help", "retry"},
		},
		{
			name:     "locked store",
			err:      errors.NewStoreError("failed to record sync event", errors.New("database is locked")).WithRetryable(true),
			wantCode: ExitFailure,
			want:     []string{"retry the command"},
		},
		{
			name:     "argument error",
			err:      fmt.Errorf("unknown flag: --bogus"),
			wantCode: ExitFailure,
			want:     []string{"Error: unknown flag: --bogus", "Run 'wtstate sync --help' for usage."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			code := reportError(&buf, syncCmd, tt.err)
			if code != tt.wantCode {
				t.Errorf("reportError() = %d, want %d", code, tt.wantCode)
			}
			out := buf.String()
			if tt.err == nil && out != "" {
				t.Errorf("nothing should be printed on success, got %q", out)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output %q missing %q", out, w)
				}
			}
			for _, a := range tt.absent {
				if strings.Contains(out, a) {
					t.Errorf("output %q should not contain %q", out, a)
				}
			}
		})
	}
}

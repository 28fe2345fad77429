package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("underlying error")

	err := New(IndexRebuildFailed, "cass index failed", cause)

	if err.Code != IndexRebuildFailed {
		t.Errorf("Code = %v, want %v", err.Code, IndexRebuildFailed)
	}
	if err.Message != "cass index failed" {
		t.Errorf("Message = %q, want %q", err.Message, "cass index failed")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}

func TestError_Error(t *testing.T) {
	tests := []struct {
		name      string
		code      ErrorCode
		message   string
		cause     error
		wantParts []string
	}{
		{
			name:      "with cause",
			code:      SearchFailed,
			message:   "search failed",
			cause:     errors.New("exit status 2"),
			wantParts: []string{"[SEARCH_FAILED]", "search failed", "exit status 2"},
		},
		{
			name:      "without cause",
			code:      ConfigInvalid,
			message:   "bad scope",
			wantParts: []string{"[CONFIG_INVALID]", "bad scope"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.code, tt.message, tt.cause).Error()
			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, missing %q", got, part)
				}
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("run: %w", New(NotifyFailed, "sendgrid", nil))
	if got := CodeOf(wrapped); got != NotifyFailed {
		t.Errorf("CodeOf(wrapped) = %v, want %v", got, NotifyFailed)
	}
	if got := CodeOf(errors.New("plain")); got != InternalError {
		t.Errorf("CodeOf(plain) = %v, want %v", got, InternalError)
	}
	if !IsCode(wrapped, NotifyFailed) {
		t.Error("IsCode(wrapped, NotifyFailed) = false")
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{New(IndexRebuildFailed, "x", nil), true},
		{New(Interrupted, "x", nil), true},
		{New(AnalysisFailed, "x", nil), false},
		{New(SyncFailed, "x", nil), false},
		{errors.New("unexpected"), true},
	}

	for _, tt := range tests {
		if got := IsFatal(tt.err); got != tt.want {
			t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

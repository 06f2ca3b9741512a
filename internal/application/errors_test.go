package application

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/MarkLark86/superdesk-planning/internal/persistence"
	"github.com/MarkLark86/superdesk-planning/internal/recurrence"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"dates.start": "start is required"}}
	if got := withFields.Error(); got != "validation failed" {
		t.Fatalf("expected generic message for populated error, got %q", got)
	}
}

func TestValidationError_HasErrors(t *testing.T) {
	t.Parallel()

	if (&ValidationError{}).HasErrors() {
		t.Fatalf("expected HasErrors to report false for empty error")
	}

	vErr := &ValidationError{}
	vErr.add("dates", "end must not be before start")
	if !vErr.HasErrors() || vErr.FieldErrors["dates"] == "" {
		t.Fatalf("expected add to populate the field map")
	}
}

func TestPartialUpdateError(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := &PartialUpdateError{Updated: []string{"e1"}, Pending: []string{"e2", "e3"}, Err: cause}

	if !errors.Is(err, cause) {
		t.Fatalf("expected PartialUpdateError to unwrap to its cause")
	}
	msg := err.Error()
	if !strings.Contains(msg, "1 of 3") || !strings.Contains(msg, "e2, e3") {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestErrInvalidRuleMatchesRuleErrors(t *testing.T) {
	t.Parallel()

	err := &recurrence.RuleError{Field: "byday", Message: "unknown day"}
	if !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected rule errors to match ErrInvalidRule")
	}
}

func TestMapEventRepoError(t *testing.T) {
	t.Parallel()

	t.Run("rule constraint is a rule error", func(t *testing.T) {
		err := mapEventRepoError(fmt.Errorf("recurrence r1: %w: %w", persistence.ErrInvalidRecurrence, persistence.ErrConstraintViolation))
		var ruleErr *recurrence.RuleError
		if !errors.As(err, &ruleErr) || ruleErr.Field != "recurring_rule" {
			t.Fatalf("expected recurring_rule error, got %v", err)
		}
		if ErrorKind(err) != "invalid_rule" {
			t.Fatalf("expected invalid_rule kind, got %q", ErrorKind(err))
		}
	})

	t.Run("other constraint does not blame dates", func(t *testing.T) {
		err := mapEventRepoError(persistence.ErrConstraintViolation)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if _, ok := vErr.FieldErrors["dates"]; ok {
			t.Fatalf("generic constraint must not be reported on dates: %v", vErr.FieldErrors)
		}
	})

	t.Run("missing event", func(t *testing.T) {
		if err := mapEventRepoError(persistence.ErrNotFound); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

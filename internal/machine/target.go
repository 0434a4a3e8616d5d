package machine

import (
	"fmt"
	"strconv"
	"strings"

	"smarttodo/internal/apperr"
)

type TargetKind int

const (
	// TargetExisting addresses a real task row by id.
	TargetExisting TargetKind = iota
	// TargetPending addresses a staged create operation by its
	// session-local pending reference.
	TargetPending
)

func (k TargetKind) String() string {
	if k == TargetPending {
		return "pending"
	}
	return "existing"
}

// Target identifies what a staged operation acts on.
type Target struct {
	Kind TargetKind
	Ref  int64
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%d", t.Kind, t.Ref)
}

// ParseTarget parses "existing:N" or "pending:N".
func ParseTarget(raw string) (Target, error) {
	kind, id, ok := strings.Cut(raw, ":")
	if !ok {
		return Target{}, apperr.Validation("invalid target format: %s", raw)
	}
	ref, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return Target{}, apperr.Validation("invalid target format: %s", raw)
	}
	switch kind {
	case "existing":
		return Target{Kind: TargetExisting, Ref: ref}, nil
	case "pending":
		return Target{Kind: TargetPending, Ref: ref}, nil
	default:
		return Target{}, apperr.Validation("invalid target type: %s", kind)
	}
}

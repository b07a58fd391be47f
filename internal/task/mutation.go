package task

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// MutationKind enumerates the write operations the store accepts.
type MutationKind string

const (
	MutationAdd       MutationKind = "add"
	MutationModify    MutationKind = "modify"
	MutationDone      MutationKind = "done"
	MutationDelete    MutationKind = "delete"
	MutationDuplicate MutationKind = "duplicate"
	MutationAnnotate  MutationKind = "annotate"
	MutationStart     MutationKind = "start"
	MutationStop      MutationKind = "stop"
)

// MaxDescriptionLength bounds descriptions accepted by Validate.
const MaxDescriptionLength = 1000

// ErrInvalidMutation is returned by Validate.
var ErrInvalidMutation = errors.New("invalid mutation")

// Mutation is a single write request. UUID addresses the target for every
// kind except add. Pointer fields are left nil when unchanged.
type Mutation struct {
	Kind        MutationKind
	UUID        string
	Description string
	Project     *string
	Priority    *Priority
	Due         *time.Time
	ClearDue    bool
	AddTags     []string
	RemoveTags  []string
	Annotation  string
}

// Outcome reports what the store did with a mutation. UUID and ID are set
// for mutations that create a task (add, duplicate) when the store reports
// them.
type Outcome struct {
	UUID string
	ID   int
}

// Creates reports whether the mutation kind creates a new task.
func (k MutationKind) Creates() bool {
	return k == MutationAdd || k == MutationDuplicate
}

// Validate checks the mutation is well-formed before it reaches a backend.
func (m Mutation) Validate() error {
	switch m.Kind {
	case MutationAdd:
		if err := validateDescription(m.Description); err != nil {
			return err
		}
	case MutationModify:
		if err := m.validateTarget(); err != nil {
			return err
		}
		if m.Description != "" {
			if err := validateDescription(m.Description); err != nil {
				return err
			}
		}
		if m.Description == "" && m.Project == nil && m.Priority == nil && m.Due == nil &&
			!m.ClearDue && len(m.AddTags) == 0 && len(m.RemoveTags) == 0 {
			return fmt.Errorf("%w: modify without changes", ErrInvalidMutation)
		}
	case MutationAnnotate:
		if err := m.validateTarget(); err != nil {
			return err
		}
		if strings.TrimSpace(m.Annotation) == "" {
			return fmt.Errorf("%w: annotation cannot be empty", ErrInvalidMutation)
		}
	case MutationDone, MutationDelete, MutationDuplicate, MutationStart, MutationStop:
		if err := m.validateTarget(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidMutation, m.Kind)
	}

	if m.Project != nil && *m.Project != "" {
		if err := validateProject(*m.Project); err != nil {
			return err
		}
	}
	for _, tag := range append(append([]string{}, m.AddTags...), m.RemoveTags...) {
		if err := validateTag(tag); err != nil {
			return err
		}
	}
	return nil
}

func (m Mutation) validateTarget() error {
	if _, err := uuid.Parse(m.UUID); err != nil {
		return fmt.Errorf("%w: %s requires a task uuid, got %q", ErrInvalidMutation, m.Kind, m.UUID)
	}
	return nil
}

func validateDescription(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: description cannot be empty", ErrInvalidMutation)
	}
	if len(s) > MaxDescriptionLength {
		return fmt.Errorf("%w: description is too long (max %d characters)", ErrInvalidMutation, MaxDescriptionLength)
	}
	return nil
}

func validateProject(s string) error {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' && r != '-' {
			return fmt.Errorf("%w: project %q may only contain letters, digits, '.', '_' and '-'", ErrInvalidMutation, s)
		}
	}
	return nil
}

func validateTag(s string) error {
	if s == "" {
		return fmt.Errorf("%w: tag cannot be empty", ErrInvalidMutation)
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return fmt.Errorf("%w: tag %q may only contain letters, digits, '_' and '-'", ErrInvalidMutation, s)
		}
	}
	return nil
}

package filter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Jayphen/lazytask/internal/task"
)

// ErrInvalidExpression is returned by Parse for malformed filter expressions.
var ErrInvalidExpression = errors.New("invalid filter expression")

// Virtual tags map onto computed predicates, as in Taskwarrior.
const (
	virtualActive  = "ACTIVE"
	virtualOverdue = "OVERDUE"
	virtualBlocked = "BLOCKED"
)

// Parse builds a Spec from a Taskwarrior-style expression such as
//
//	status:pending project:home +work -later due.before:2026-01-01 groceries
//
// Words that are not recognised attributes become the free-text criterion.
// Relative dates (now, today, tomorrow, yesterday) resolve against now.
func Parse(expr string, now time.Time) (Spec, error) {
	var s Spec
	var text []string

	for _, tok := range strings.Fields(expr) {
		switch {
		case len(tok) > 1 && (tok[0] == '+' || tok[0] == '-'):
			include := tok[0] == '+'
			name := tok[1:]
			v := include
			switch name {
			case virtualActive:
				s.Active = &v
			case virtualOverdue:
				s.Overdue = &v
			case virtualBlocked:
				s.Blocked = &v
			default:
				if include {
					s.Tags = append(s.Tags, name)
				} else {
					s.ExcludeTags = append(s.ExcludeTags, name)
				}
			}

		case strings.Contains(tok, ":"):
			key, value, _ := strings.Cut(tok, ":")
			if k := strings.ToLower(key); k == "description" || k == "desc" {
				text = append(text, value)
				continue
			}
			handled, err := s.setAttribute(strings.ToLower(key), value, now)
			if err != nil {
				return Spec{}, err
			}
			if !handled {
				text = append(text, tok)
			}

		default:
			text = append(text, tok)
		}
	}

	s.Text = strings.Join(text, " ")
	return s, nil
}

func (s *Spec) setAttribute(key, value string, now time.Time) (bool, error) {
	switch key {
	case "status":
		if strings.EqualFold(value, "all") || value == "" {
			s.Status = ""
			return true, nil
		}
		st := task.ParseStatus(value)
		if !strings.EqualFold(string(st), value) {
			return false, fmt.Errorf("%w: unknown status %q", ErrInvalidExpression, value)
		}
		s.Status = st

	case "project", "pro":
		s.Project, s.ProjectExact = value, false

	case "project.is", "pro.is":
		s.Project, s.ProjectExact = value, true

	case "priority", "pri":
		p := task.ParsePriority(value)
		if p == task.PriorityNone && value != "" && !strings.EqualFold(value, "none") {
			return false, fmt.Errorf("%w: unknown priority %q", ErrInvalidExpression, value)
		}
		s.Priority = &p

	case "due.before", "due.below":
		t, err := ParseDate(value, now)
		if err != nil {
			return false, err
		}
		s.DueBefore = &t

	case "due.after", "due.above":
		t, err := ParseDate(value, now)
		if err != nil {
			return false, err
		}
		s.DueAfter = &t

	default:
		return false, nil
	}
	return true, nil
}

// ParseDate resolves an absolute (YYYY-MM-DD, RFC 3339, Taskwarrior layout)
// or relative date. Calendar dates are midnight in now's location.
func ParseDate(value string, now time.Time) (time.Time, error) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch strings.ToLower(value) {
	case "now":
		return now, nil
	case "today", "sod":
		return midnight, nil
	case "tomorrow", "eod":
		return midnight.AddDate(0, 0, 1), nil
	case "yesterday":
		return midnight.AddDate(0, 0, -1), nil
	}

	if t, err := time.ParseInLocation("2006-01-02", value, now.Location()); err == nil {
		return t, nil
	}
	if t, err := task.ParseTime(value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid date %q (use YYYY-MM-DD, RFC 3339 or today/tomorrow/yesterday/now)", ErrInvalidExpression, value)
}

// String renders s as an expression Parse accepts.
func (s Spec) String() string {
	var parts []string
	if s.Status != "" {
		parts = append(parts, "status:"+string(s.Status))
	}
	if s.Project != "" {
		if s.ProjectExact {
			parts = append(parts, "project.is:"+s.Project)
		} else {
			parts = append(parts, "project:"+s.Project)
		}
	}
	if s.Priority != nil {
		code := s.Priority.Code()
		if code == "" {
			code = "none"
		}
		parts = append(parts, "priority:"+code)
	}
	for _, tag := range normalizeTags(s.Tags) {
		parts = append(parts, "+"+tag)
	}
	for _, tag := range normalizeTags(s.ExcludeTags) {
		parts = append(parts, "-"+tag)
	}
	if s.DueBefore != nil {
		parts = append(parts, "due.before:"+s.DueBefore.Format(time.RFC3339))
	}
	if s.DueAfter != nil {
		parts = append(parts, "due.after:"+s.DueAfter.Format(time.RFC3339))
	}
	parts = appendVirtual(parts, virtualActive, s.Active)
	parts = appendVirtual(parts, virtualOverdue, s.Overdue)
	parts = appendVirtual(parts, virtualBlocked, s.Blocked)
	if s.Text != "" {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}

func appendVirtual(parts []string, name string, v *bool) []string {
	if v == nil {
		return parts
	}
	if *v {
		return append(parts, "+"+name)
	}
	return append(parts, "-"+name)
}

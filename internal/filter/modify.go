package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/Jayphen/lazytask/internal/task"
)

// ParseModification builds a mutation from modifier words in the same
// attribute syntax Parse accepts:
//
//	project:home priority:H due:tomorrow +work -later buy milk
//
// An empty value clears the attribute (project:, due:). Remaining words form
// the description, which for annotate becomes the annotation text. The
// result is not validated.
func ParseModification(kind task.MutationKind, uuid, expr string, now time.Time) (task.Mutation, error) {
	m := task.Mutation{Kind: kind, UUID: uuid}
	var text []string

	for _, tok := range strings.Fields(expr) {
		if kind == task.MutationAnnotate {
			text = append(text, tok)
			continue
		}
		switch {
		case len(tok) > 1 && tok[0] == '+':
			m.AddTags = append(m.AddTags, tok[1:])
		case len(tok) > 1 && tok[0] == '-':
			m.RemoveTags = append(m.RemoveTags, tok[1:])

		case strings.Contains(tok, ":"):
			key, value, _ := strings.Cut(tok, ":")
			switch strings.ToLower(key) {
			case "project", "pro":
				m.Project = &value
			case "priority", "pri":
				p := task.ParsePriority(value)
				if p == task.PriorityNone && value != "" && !strings.EqualFold(value, "none") {
					return task.Mutation{}, fmt.Errorf("%w: unknown priority %q", ErrInvalidExpression, value)
				}
				m.Priority = &p
			case "due":
				if value == "" {
					m.ClearDue = true
					continue
				}
				t, err := ParseDate(value, now)
				if err != nil {
					return task.Mutation{}, err
				}
				m.Due = &t
			case "description", "desc":
				text = append(text, value)
			default:
				text = append(text, tok)
			}

		default:
			text = append(text, tok)
		}
	}

	if kind == task.MutationAnnotate {
		m.Annotation = strings.Join(text, " ")
	} else {
		m.Description = strings.Join(text, " ")
	}
	return m, nil
}

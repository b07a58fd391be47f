package access

import (
	"fmt"
	"slices"
	"time"

	"github.com/Jayphen/lazytask/internal/task"
)

// verify checks that the re-read record set reflects a mutation the store
// reported as applied.
func verify(m task.Mutation, outcome task.Outcome, tasks []task.Task) error {
	if m.Kind.Creates() {
		switch {
		case outcome.UUID != "":
			if findUUID(tasks, outcome.UUID) == nil {
				return fmt.Errorf("created task %s not found", outcome.UUID)
			}
		case outcome.ID > 0:
			if lookupUUID(tasks, outcome.ID) == "" {
				return fmt.Errorf("created task %d not found", outcome.ID)
			}
		}
		return nil
	}

	t := findUUID(tasks, m.UUID)
	if m.Kind == task.MutationDelete {
		if t != nil && t.Status != task.StatusDeleted {
			return fmt.Errorf("task %s still %s after delete", m.UUID, t.Status)
		}
		return nil
	}
	if t == nil {
		return fmt.Errorf("task %s not found after %s", m.UUID, m.Kind)
	}

	switch m.Kind {
	case task.MutationDone:
		if t.Status != task.StatusCompleted {
			return fmt.Errorf("task %s is %s after done", m.UUID, t.Status)
		}
	case task.MutationStart:
		if !t.IsActive() {
			return fmt.Errorf("task %s not active after start", m.UUID)
		}
	case task.MutationStop:
		if t.Start != nil {
			return fmt.Errorf("task %s still active after stop", m.UUID)
		}
	case task.MutationAnnotate:
		if !slices.ContainsFunc(t.Annotations, func(a task.Annotation) bool { return a.Description == m.Annotation }) {
			return fmt.Errorf("annotation missing on task %s", m.UUID)
		}
	case task.MutationModify:
		return verifyModify(m, t)
	}
	return nil
}

func verifyModify(m task.Mutation, t *task.Task) error {
	if m.Description != "" && t.Description != m.Description {
		return fmt.Errorf("task %s description is %q, want %q", t.UUID, t.Description, m.Description)
	}
	if m.Project != nil && t.Project != *m.Project {
		return fmt.Errorf("task %s project is %q, want %q", t.UUID, t.Project, *m.Project)
	}
	if m.Priority != nil && t.Priority != *m.Priority {
		return fmt.Errorf("task %s priority is %s, want %s", t.UUID, t.Priority, *m.Priority)
	}
	if m.ClearDue && t.Due != nil {
		return fmt.Errorf("task %s still has a due date", t.UUID)
	}
	if m.Due != nil && !m.ClearDue && (t.Due == nil || !t.Due.Equal(m.Due.Truncate(time.Second))) {
		return fmt.Errorf("task %s due date not updated", t.UUID)
	}
	for _, tag := range m.AddTags {
		if !t.HasTag(tag) {
			return fmt.Errorf("task %s missing tag %q", t.UUID, tag)
		}
	}
	for _, tag := range m.RemoveTags {
		if t.HasTag(tag) {
			return fmt.Errorf("task %s still tagged %q", t.UUID, tag)
		}
	}
	return nil
}

func findUUID(tasks []task.Task, uuid string) *task.Task {
	for i := range tasks {
		if tasks[i].UUID == uuid {
			return &tasks[i]
		}
	}
	return nil
}

func lookupUUID(tasks []task.Task, id int) string {
	for _, t := range tasks {
		if t.ID == id {
			return t.UUID
		}
	}
	return ""
}

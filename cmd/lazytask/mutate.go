package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Jayphen/lazytask/internal/filter"
	"github.com/Jayphen/lazytask/internal/task"
	"github.com/Jayphen/lazytask/internal/tui"
)

var (
	// ErrNoSuchTask is returned when a reference matches no task.
	ErrNoSuchTask = errors.New("no matching task")
	// ErrAmbiguousRef is returned when a uuid prefix matches several tasks.
	ErrAmbiguousRef = errors.New("ambiguous task reference")
)

// minPrefix is the shortest uuid prefix accepted as a reference.
const minPrefix = 4

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <description> [modifiers...]",
		Short: "Add a task",
		Long: `Add a task. Modifiers use Taskwarrior syntax:

  lazytask add project:home pri:H due:tomorrow +errand buy milk`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMutation(task.MutationAdd, "", strings.Join(args, " "))
		},
	}
}

func newModifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modify <id|uuid> <modifiers...>",
		Short: "Change a task's attributes",
		Long: `Change a task's attributes. An empty value clears one:

  lazytask modify 12 project:work -later
  lazytask modify 12 due:`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMutation(task.MutationModify, args[0], strings.Join(args[1:], " "))
		},
	}
}

func newAnnotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "annotate <id|uuid> <text...>",
		Short: "Add an annotation to a task",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMutation(task.MutationAnnotate, args[0], strings.Join(args[1:], " "))
		},
	}
}

func newDoneCmd() *cobra.Command {
	return newTargetCmd("done", "Mark tasks completed", task.MutationDone)
}

func newDeleteCmd() *cobra.Command {
	return newTargetCmd("delete", "Delete tasks", task.MutationDelete)
}

func newDuplicateCmd() *cobra.Command {
	return newTargetCmd("duplicate", "Copy tasks as new pending tasks", task.MutationDuplicate)
}

func newStartCmd() *cobra.Command {
	return newTargetCmd("start", "Start working on tasks", task.MutationStart)
}

func newStopCmd() *cobra.Command {
	return newTargetCmd("stop", "Stop working on tasks", task.MutationStop)
}

// newTargetCmd builds a command that applies kind to each referenced task.
func newTargetCmd(use, short string, kind task.MutationKind) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id|uuid>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(use, func(ctx context.Context, a *app) error {
				var failed int
				for _, ref := range args {
					if err := applyMutation(ctx, a, kind, ref, ""); err != nil {
						fmt.Println(tui.ErrorStyle.Render(fmt.Sprintf("✗ %s: %v", ref, err)))
						failed++
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d changes failed", failed, len(args))
				}
				return nil
			})
		},
	}
}

func runMutation(kind task.MutationKind, ref, expr string) error {
	return withApp(string(kind), func(ctx context.Context, a *app) error {
		return applyMutation(ctx, a, kind, ref, expr)
	})
}

func applyMutation(ctx context.Context, a *app, kind task.MutationKind, ref, expr string) error {
	var target task.Task
	if ref != "" {
		var err error
		if target, err = resolveTask(a.coord.Snapshot().Tasks, ref); err != nil {
			return err
		}
	}

	m, err := filter.ParseModification(kind, target.UUID, expr, time.Now())
	if err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}

	out, err := a.engine.Mutate(ctx, m)
	if err != nil {
		return err
	}

	switch {
	case kind.Creates() && out.ID > 0:
		fmt.Printf("\033[32m✓\033[0m Created task %d\n", out.ID)
	case kind.Creates() && out.UUID != "":
		fmt.Printf("\033[32m✓\033[0m Created task %s\n", out.UUID[:8])
	case kind.Creates():
		fmt.Printf("\033[32m✓\033[0m Created task\n")
	default:
		fmt.Printf("\033[32m✓\033[0m %s %s: %s\n", pastTense(kind), target.DisplayID(), target.Description)
	}
	a.log.WithGeneration(a.engine.CurrentGeneration()).WithField("kind", string(kind)).Info("Mutation applied")
	return nil
}

// resolveTask finds the task ref names. ref is a working-set id, a full
// uuid, or a unique uuid prefix.
func resolveTask(tasks []task.Task, ref string) (task.Task, error) {
	ref = strings.TrimSpace(ref)

	if id, err := strconv.Atoi(ref); err == nil {
		if id <= 0 {
			return task.Task{}, fmt.Errorf("%w: %s", ErrNoSuchTask, ref)
		}
		for _, t := range tasks {
			if t.ID == id {
				return t, nil
			}
		}
		return task.Task{}, fmt.Errorf("%w: id %d", ErrNoSuchTask, id)
	}

	if u, err := uuid.Parse(ref); err == nil {
		want := u.String()
		for _, t := range tasks {
			if t.UUID == want {
				return t, nil
			}
		}
		return task.Task{}, fmt.Errorf("%w: %s", ErrNoSuchTask, want)
	}

	if len(ref) < minPrefix {
		return task.Task{}, fmt.Errorf("%w: %q is too short for a uuid prefix", ErrNoSuchTask, ref)
	}
	prefix := strings.ToLower(ref)
	var found []task.Task
	for _, t := range tasks {
		if strings.HasPrefix(t.UUID, prefix) {
			found = append(found, t)
		}
	}
	switch len(found) {
	case 0:
		return task.Task{}, fmt.Errorf("%w: %s", ErrNoSuchTask, ref)
	case 1:
		return found[0], nil
	default:
		return task.Task{}, fmt.Errorf("%w: %s matches %d tasks", ErrAmbiguousRef, ref, len(found))
	}
}

func pastTense(kind task.MutationKind) string {
	switch kind {
	case task.MutationModify:
		return "Modified"
	case task.MutationDone:
		return "Completed"
	case task.MutationDelete:
		return "Deleted"
	case task.MutationAnnotate:
		return "Annotated"
	case task.MutationStart:
		return "Started"
	case task.MutationStop:
		return "Stopped"
	default:
		return string(kind)
	}
}

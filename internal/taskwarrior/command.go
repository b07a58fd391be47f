package taskwarrior

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/Jayphen/lazytask/internal/task"
)

var (
	createdUUIDPattern = regexp.MustCompile(`Created task ([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})`)
	createdIDPattern   = regexp.MustCompile(`Created task (\d+)`)
)

// Execute applies a mutation with the task binary.
func (c *Client) Execute(ctx context.Context, m task.Mutation) (task.Outcome, error) {
	if err := m.Validate(); err != nil {
		return task.Outcome{}, err
	}
	args := MutationArgs(m)
	out, err := c.run(ctx, c.opts.Timeout, nil, args...)
	if err != nil {
		return task.Outcome{}, err
	}

	c.log.WithFields(map[string]interface{}{
		"kind": string(m.Kind),
		"uuid": m.UUID,
	}).Info("Applied mutation")

	if !m.Kind.Creates() {
		return task.Outcome{UUID: m.UUID}, nil
	}
	outcome, ok := parseCreated(string(out))
	if !ok {
		return task.Outcome{}, &CommandError{
			Args: args,
			Err:  fmt.Errorf("%w: no task id in %q", ErrParseFailure, string(out)),
		}
	}
	return outcome, nil
}

// MutationArgs renders m as task command-line arguments. Free text is placed
// after "--" so words like "project:x" in a description are not parsed as
// modifiers.
func MutationArgs(m task.Mutation) []string {
	var args []string
	switch m.Kind {
	case task.MutationAdd:
		args = append(args, "rc.verbose=new-uuid", "add")
		args = append(args, modifiers(m)...)
		args = append(args, "--", m.Description)

	case task.MutationModify:
		args = append(args, m.UUID, "modify")
		args = append(args, modifiers(m)...)
		if m.Description != "" {
			args = append(args, "--", m.Description)
		}

	case task.MutationDuplicate:
		args = append(args, "rc.verbose=new-uuid", m.UUID, "duplicate")
		args = append(args, modifiers(m)...)

	case task.MutationDelete:
		args = append(args, "rc.confirmation=off", m.UUID, "delete")

	case task.MutationAnnotate:
		args = append(args, m.UUID, "annotate", "--", m.Annotation)

	case task.MutationDone, task.MutationStart, task.MutationStop:
		args = append(args, m.UUID, string(m.Kind))
	}
	return args
}

func modifiers(m task.Mutation) []string {
	var mods []string
	if m.Project != nil {
		mods = append(mods, "project:"+*m.Project)
	}
	if m.Priority != nil {
		mods = append(mods, "priority:"+m.Priority.Code())
	}
	switch {
	case m.ClearDue:
		mods = append(mods, "due:")
	case m.Due != nil:
		mods = append(mods, "due:"+task.FormatTime(*m.Due))
	}
	for _, tag := range m.AddTags {
		mods = append(mods, "+"+tag)
	}
	for _, tag := range m.RemoveTags {
		mods = append(mods, "-"+tag)
	}
	return mods
}

// parseCreated extracts the new task's identity from `task add` output.
// rc.verbose=new-uuid yields a uuid; older versions only print the id.
func parseCreated(out string) (task.Outcome, bool) {
	if m := createdUUIDPattern.FindStringSubmatch(out); m != nil {
		return task.Outcome{UUID: m[1]}, true
	}
	if m := createdIDPattern.FindStringSubmatch(out); m != nil {
		id, err := strconv.Atoi(m[1])
		if err == nil {
			return task.Outcome{ID: id}, true
		}
	}
	return task.Outcome{}, false
}

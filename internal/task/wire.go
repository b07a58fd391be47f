package task

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrMalformed marks a record that could not be decoded or failed validation.
var ErrMalformed = errors.New("malformed task record")

// wireTask mirrors the JSON produced by `task export` and accepted by `task import`.
type wireTask struct {
	ID          int              `json:"id,omitempty"`
	UUID        string           `json:"uuid"`
	Description string           `json:"description"`
	Status      string           `json:"status"`
	Project     string           `json:"project,omitempty"`
	Priority    string           `json:"priority,omitempty"`
	Tags        []string         `json:"tags,omitempty"`
	Depends     json.RawMessage  `json:"depends,omitempty"`
	Annotations []wireAnnotation `json:"annotations,omitempty"`
	Entry       *Timestamp       `json:"entry,omitempty"`
	Modified    *Timestamp       `json:"modified,omitempty"`
	Due         *Timestamp       `json:"due,omitempty"`
	Wait        *Timestamp       `json:"wait,omitempty"`
	Scheduled   *Timestamp       `json:"scheduled,omitempty"`
	Start       *Timestamp       `json:"start,omitempty"`
	End         *Timestamp       `json:"end,omitempty"`
	Until       *Timestamp       `json:"until,omitempty"`
	Urgency     *float64         `json:"urgency,omitempty"`
}

type wireAnnotation struct {
	Entry       *Timestamp `json:"entry"`
	Description string     `json:"description"`
}

// DecodeExport parses the output of `task export`. Both a JSON array and a
// stream of newline separated objects are accepted. Records that fail to
// decode or validate are skipped and counted rather than failing the batch.
// Records without an urgency score get one computed at now.
func DecodeExport(data []byte, now time.Time) ([]Task, int, error) {
	raws, err := splitRecords(data)
	if err != nil {
		return nil, 0, err
	}

	tasks := make([]Task, 0, len(raws))
	skipped := 0
	for _, raw := range raws {
		t, err := DecodeRecord(raw, now)
		if err != nil {
			skipped++
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, skipped, nil
}

// DecodeRecord parses and validates a single exported record.
func DecodeRecord(raw []byte, now time.Time) (Task, error) {
	var w wireTask
	if err := json.Unmarshal(raw, &w); err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := uuid.Parse(w.UUID); err != nil {
		return Task{}, fmt.Errorf("%w: invalid uuid %q", ErrMalformed, w.UUID)
	}
	if strings.TrimSpace(w.Description) == "" {
		return Task{}, fmt.Errorf("%w: task %s has no description", ErrMalformed, w.UUID)
	}
	depends, err := decodeDepends(w.Depends)
	if err != nil {
		return Task{}, fmt.Errorf("%w: task %s: %v", ErrMalformed, w.UUID, err)
	}

	t := Task{
		ID:          w.ID,
		UUID:        w.UUID,
		Description: w.Description,
		Project:     w.Project,
		Priority:    ParsePriority(w.Priority),
		Status:      ParseStatus(w.Status),
		Tags:        w.Tags,
		Depends:     depends,
		Due:         ptrTime(w.Due),
		Wait:        ptrTime(w.Wait),
		Scheduled:   ptrTime(w.Scheduled),
		Start:       ptrTime(w.Start),
		End:         ptrTime(w.End),
		Until:       ptrTime(w.Until),
	}
	if w.Entry != nil {
		t.Entry = w.Entry.Time
	}
	if w.Modified != nil {
		t.Modified = w.Modified.Time
	}
	if t.Modified.IsZero() {
		t.Modified = t.Entry
	}
	for _, a := range w.Annotations {
		ann := Annotation{Description: a.Description}
		if a.Entry != nil {
			ann.Entry = a.Entry.Time
		}
		t.Annotations = append(t.Annotations, ann)
	}
	if w.Urgency != nil {
		t.Urgency = *w.Urgency
	} else {
		t.Urgency = Urgency(t, now)
	}
	return t, nil
}

// EncodeImport renders tasks in the JSON array form accepted by `task import`.
func EncodeImport(tasks []Task) ([]byte, error) {
	out := make([]wireTask, 0, len(tasks))
	for _, t := range tasks {
		w := wireTask{
			UUID:        t.UUID,
			Description: t.Description,
			Status:      string(t.Status),
			Project:     t.Project,
			Priority:    t.Priority.Code(),
			Tags:        t.Tags,
			Due:         fromPtr(t.Due),
			Wait:        fromPtr(t.Wait),
			Scheduled:   fromPtr(t.Scheduled),
			Start:       fromPtr(t.Start),
			End:         fromPtr(t.End),
			Until:       fromPtr(t.Until),
		}
		if !t.Entry.IsZero() {
			w.Entry = &Timestamp{Time: t.Entry}
		}
		if !t.Modified.IsZero() {
			w.Modified = &Timestamp{Time: t.Modified}
		}
		if len(t.Depends) > 0 {
			deps, err := json.Marshal(t.Depends)
			if err != nil {
				return nil, err
			}
			w.Depends = deps
		}
		for _, a := range t.Annotations {
			w.Annotations = append(w.Annotations, wireAnnotation{
				Entry:       &Timestamp{Time: a.Entry},
				Description: a.Description,
			})
		}
		out = append(out, w)
	}
	return json.Marshal(out)
}

// splitRecords returns the raw JSON objects contained in an export.
func splitRecords(data []byte) ([]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("failed to decode task export: %w", err)
		}
		return raws, nil
	}

	var raws []json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if err == io.EOF {
				break
			}
			return raws, fmt.Errorf("failed to decode task export: %w", err)
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

// decodeDepends accepts both the array form (Taskwarrior >= 2.6) and the
// legacy comma separated string.
func decodeDepends(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err != nil {
		return nil, fmt.Errorf("invalid depends: %s", raw)
	}
	var deps []string
	for _, d := range strings.Split(joined, ",") {
		if d = strings.TrimSpace(d); d != "" {
			deps = append(deps, d)
		}
	}
	return deps, nil
}

package task

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

const (
	uuidA = "6f1c3a4e-2b7d-4c1e-9a55-0f8e2d1b3c4a"
	uuidB = "a9b8c7d6-e5f4-4a3b-8c2d-1e0f9a8b7c6d"
)

func ptr(t time.Time) *time.Time { return &t }

func TestIsActiveIgnoresStatus(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	tests := []struct {
		name string
		task Task
		want bool
	}{
		{"pending with start", Task{Status: StatusPending, Start: &start}, true},
		{"completed with start and no end", Task{Status: StatusCompleted, Start: &start}, true},
		{"waiting with start", Task{Status: StatusWaiting, Start: &start}, true},
		{"start and end", Task{Status: StatusPending, Start: &start, End: &end}, false},
		{"no start", Task{Status: StatusPending}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.IsActive(); got != tt.want {
				t.Errorf("IsActive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsOverdue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)

	tests := []struct {
		name string
		task Task
		want bool
	}{
		{"pending past due", Task{Status: StatusPending, Due: &past}, true},
		{"waiting past due", Task{Status: StatusWaiting, Due: &past}, true},
		{"completed past due", Task{Status: StatusCompleted, Due: &past}, false},
		{"deleted past due", Task{Status: StatusDeleted, Due: &past}, false},
		{"pending future due", Task{Status: StatusPending, Due: &future}, false},
		{"no due", Task{Status: StatusPending}, false},
		{"due exactly now", Task{Status: StatusPending, Due: &now}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.IsOverdue(now); got != tt.want {
				t.Errorf("IsOverdue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParsePriorityOrdering(t *testing.T) {
	if !(PriorityHigh > PriorityMedium && PriorityMedium > PriorityLow && PriorityLow > PriorityNone) {
		t.Fatal("priorities are not ordered High > Medium > Low > None")
	}
	for _, p := range Priorities {
		if got := ParsePriority(p.Code()); got != p {
			t.Errorf("ParsePriority(%q) = %v, want %v", p.Code(), got, p)
		}
	}
	if got := ParsePriority("medium"); got != PriorityMedium {
		t.Errorf("ParsePriority(medium) = %v", got)
	}
}

func TestDisplayID(t *testing.T) {
	if got := (Task{ID: 12, UUID: uuidA}).DisplayID(); got != "12" {
		t.Errorf("DisplayID() = %q, want 12", got)
	}
	if got := (Task{UUID: uuidA}).DisplayID(); got != "6f1c3a4e" {
		t.Errorf("DisplayID() = %q, want uuid prefix", got)
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, in := range []string{"20260102T030405Z", "2026-01-02T03:04:05Z", "1767323045"} {
		got, err := ParseTime(in)
		if err != nil {
			t.Fatalf("ParseTime(%q) error: %v", in, err)
		}
		if !got.Equal(want) {
			t.Errorf("ParseTime(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseTime("yesterday-ish"); err == nil {
		t.Error("ParseTime should reject garbage")
	}
}

func TestDecodeExportSkipsMalformed(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	data := []byte(`[
		{"id":1,"uuid":"` + uuidA + `","description":"write report","status":"pending","project":"work","priority":"H","tags":["next"],"entry":"20260301T090000Z","modified":"20260302T090000Z","due":"20260305T000000Z","urgency":21.5},
		{"id":0,"uuid":"` + uuidB + `","description":"file taxes","status":"completed","entry":"20260201T090000Z","end":"20260215T090000Z","depends":"` + uuidA + `"},
		{"id":2,"uuid":"not-a-uuid","description":"broken","status":"pending"},
		{"id":3,"uuid":"` + uuidA + `","description":"","status":"pending"},
		{"id":4,"uuid":"` + uuidB + `","description":"bad date","status":"pending","due":"someday"}
	]`)

	tasks, skipped, err := DecodeExport(data, now)
	if err != nil {
		t.Fatalf("DecodeExport failed: %v", err)
	}
	if skipped != 3 {
		t.Errorf("skipped = %d, want 3", skipped)
	}
	if len(tasks) != 2 {
		t.Fatalf("len(tasks) = %d, want 2", len(tasks))
	}

	first := tasks[0]
	if first.Priority != PriorityHigh || first.Project != "work" || first.Urgency != 21.5 {
		t.Errorf("unexpected first task: %+v", first)
	}
	if first.Due == nil || !first.Due.Equal(time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("due = %v", first.Due)
	}

	second := tasks[1]
	if second.Status != StatusCompleted {
		t.Errorf("status = %q, want completed", second.Status)
	}
	if len(second.Depends) != 1 || second.Depends[0] != uuidA {
		t.Errorf("depends = %v", second.Depends)
	}
	if !second.Modified.Equal(second.Entry) {
		t.Errorf("modified should default to entry, got %v", second.Modified)
	}
}

func TestDecodeExportLineDelimited(t *testing.T) {
	data := []byte(`{"uuid":"` + uuidA + `","description":"one","status":"pending"}
{"uuid":"` + uuidB + `","description":"two","status":"waiting"}`)
	tasks, skipped, err := DecodeExport(data, time.Now())
	if err != nil {
		t.Fatalf("DecodeExport failed: %v", err)
	}
	if skipped != 0 || len(tasks) != 2 {
		t.Fatalf("got %d tasks, %d skipped", len(tasks), skipped)
	}
	if tasks[1].Status != StatusWaiting {
		t.Errorf("status = %q, want waiting", tasks[1].Status)
	}
}

func TestDecodeExportEmpty(t *testing.T) {
	tasks, skipped, err := DecodeExport([]byte("  \n"), time.Now())
	if err != nil || len(tasks) != 0 || skipped != 0 {
		t.Errorf("DecodeExport(empty) = %v, %d, %v", tasks, skipped, err)
	}
}

func TestDecodeRecordMalformed(t *testing.T) {
	_, err := DecodeRecord([]byte(`{"uuid":"x","description":"y"}`), time.Now())
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}

func TestEncodeImportUsesTaskwarriorLayout(t *testing.T) {
	entry := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	data, err := EncodeImport([]Task{{
		UUID:        uuidA,
		Description: "write report",
		Status:      StatusPending,
		Priority:    PriorityMedium,
		Entry:       entry,
		Due:         ptr(entry.Add(24 * time.Hour)),
		Depends:     []string{uuidB},
	}})
	if err != nil {
		t.Fatalf("EncodeImport failed: %v", err)
	}

	var out []map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if out[0]["entry"] != "20260301T090000Z" || out[0]["due"] != "20260302T090000Z" {
		t.Errorf("timestamps not in export layout: %v", out[0])
	}
	if out[0]["priority"] != "M" {
		t.Errorf("priority = %v, want M", out[0]["priority"])
	}
}

func TestUrgency(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		task Task
		want float64
	}{
		{"bare", Task{Status: StatusPending, Entry: now}, 0},
		{"high priority", Task{Status: StatusPending, Entry: now, Priority: PriorityHigh}, 6.0},
		{"overdue a week", Task{Status: StatusPending, Entry: now, Due: ptr(now.AddDate(0, 0, -7))}, 12.0},
		{"due far away", Task{Status: StatusPending, Entry: now, Due: ptr(now.AddDate(0, 1, 0))}, 2.4},
		{"next tag", Task{Status: StatusPending, Entry: now, Tags: []string{"next"}}, 15.8},
		{"blocked project", Task{Status: StatusPending, Entry: now, Project: "home", Depends: []string{uuidA}}, -4.0},
		{"closed", Task{Status: StatusCompleted, Entry: now, Priority: PriorityHigh}, 0},
		{"year old", Task{Status: StatusPending, Entry: now.AddDate(-2, 0, 0)}, 2.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Urgency(tt.task, now); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Urgency() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMutationValidate(t *testing.T) {
	project := "home.garden"
	badProject := "my project"

	tests := []struct {
		name    string
		m       Mutation
		wantErr bool
	}{
		{"add", Mutation{Kind: MutationAdd, Description: "buy milk"}, false},
		{"add empty", Mutation{Kind: MutationAdd, Description: "   "}, true},
		{"modify project", Mutation{Kind: MutationModify, UUID: uuidA, Project: &project}, false},
		{"modify nothing", Mutation{Kind: MutationModify, UUID: uuidA}, true},
		{"modify bad project", Mutation{Kind: MutationModify, UUID: uuidA, Project: &badProject}, true},
		{"done without uuid", Mutation{Kind: MutationDone}, true},
		{"delete", Mutation{Kind: MutationDelete, UUID: uuidB}, false},
		{"annotate empty", Mutation{Kind: MutationAnnotate, UUID: uuidA}, true},
		{"bad tag", Mutation{Kind: MutationAdd, Description: "x", AddTags: []string{"a b"}}, true},
		{"unknown kind", Mutation{Kind: "purge"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidMutation) {
				t.Errorf("error %v does not wrap ErrInvalidMutation", err)
			}
		})
	}
}

package task

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is Taskwarrior's compact ISO-8601 layout (YYYYMMDDTHHMMSSZ, UTC).
const TimeLayout = "20060102T150405Z"

// Timestamp wraps time.Time with Taskwarrior's JSON encoding.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" || s == "0" {
		ts.Time = time.Time{}
		return nil
	}
	t, err := ParseTime(s)
	if err != nil {
		return err
	}
	ts.Time = t
	return nil
}

// MarshalJSON implements json.Marshaler.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.Time.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + FormatTime(ts.Time) + `"`), nil
}

// ParseTime parses the layouts a Taskwarrior store may hand back: the compact
// export layout, RFC 3339, and unix epoch seconds (TaskChampion's storage form).
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("failed to parse Taskwarrior time string '%s'", s)
}

// FormatTime renders t in the compact export layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func ptrTime(ts *Timestamp) *time.Time {
	if ts == nil || ts.Time.IsZero() {
		return nil
	}
	t := ts.Time
	return &t
}

func fromPtr(t *time.Time) *Timestamp {
	if t == nil {
		return nil
	}
	return &Timestamp{Time: *t}
}

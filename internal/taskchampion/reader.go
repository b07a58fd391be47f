// Package taskchampion reads tasks directly from a TaskChampion replica, the
// SQLite database Taskwarrior 3 keeps in its data directory. The reader never
// writes: every change goes through the task binary.
package taskchampion

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Jayphen/lazytask/internal/logging"
	"github.com/Jayphen/lazytask/internal/task"
)

// DatabaseFile is the replica's file name inside the data directory.
const DatabaseFile = "taskchampion.sqlite3"

var (
	// ErrUnavailable is returned when the replica cannot be opened or read.
	ErrUnavailable = errors.New("taskchampion replica unavailable")

	// ErrMalformed marks a row whose data cannot be turned into a task.
	ErrMalformed = errors.New("malformed taskchampion record")
)

// Reader is a read-only view of a replica.
type Reader struct {
	db   *sql.DB
	path string
	now  func() time.Time
	log  *logging.Logger
}

// Open opens the replica at path, which may be the database file or the
// data directory containing it.
func Open(path string, busyTimeout time.Duration) (*Reader, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, DatabaseFile)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if busyTimeout <= 0 {
		busyTimeout = 2 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=%d", path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", ErrUnavailable, err)
	}
	db.SetMaxOpenConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), busyTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'tasks'`).Scan(&n); err != nil || n == 0 {
		db.Close()
		return nil, fmt.Errorf("%w: %s has no tasks table", ErrUnavailable, path)
	}

	return &Reader{
		db:   db,
		path: path,
		now:  time.Now,
		log:  logging.WithComponent("taskchampion").WithField("path", path),
	}, nil
}

// Path returns the database file path.
func (r *Reader) Path() string {
	return r.path
}

// Close closes the database connection.
func (r *Reader) Close() error {
	return r.db.Close()
}

// FetchAll reads every task in the replica. Rows that cannot be decoded are
// skipped; the second result counts them.
func (r *Reader) FetchAll(ctx context.Context) ([]task.Task, int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.uuid, t.data, COALESCE(w.id, 0)
		FROM tasks t
		LEFT JOIN working_set w ON w.uuid = t.uuid
		ORDER BY t.uuid
	`)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: querying tasks: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	now := r.now()
	var tasks []task.Task
	skipped := 0
	for rows.Next() {
		var (
			id        string
			data      []byte
			workingID int
		)
		if err := rows.Scan(&id, &data, &workingID); err != nil {
			return nil, 0, fmt.Errorf("%w: scanning task: %v", ErrUnavailable, err)
		}
		t, err := decodeRow(id, data, workingID, now)
		if err != nil {
			r.log.WithError(err).Debug("Skipping malformed row")
			skipped++
			continue
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if skipped > 0 {
		r.log.WithField("skipped", skipped).Warn("Skipped malformed rows")
	}
	return tasks, skipped, nil
}

// LastModified reports when the replica last changed on disk, taking the
// write-ahead log into account.
func (r *Reader) LastModified() (time.Time, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	latest := info.ModTime()
	if wal, err := os.Stat(r.path + "-wal"); err == nil && wal.ModTime().After(latest) {
		latest = wal.ModTime()
	}
	return latest, nil
}

// decodeRow converts a replica row. TaskChampion stores each task as a flat
// map of string properties: timestamps are unix seconds, tags are
// "tag_<name>" keys, dependencies "dep_<uuid>" and annotations
// "annotation_<unix seconds>".
func decodeRow(id string, data []byte, workingID int, now time.Time) (task.Task, error) {
	if _, err := uuid.Parse(id); err != nil {
		return task.Task{}, fmt.Errorf("%w: invalid uuid %q", ErrMalformed, id)
	}
	var props map[string]string
	if err := json.Unmarshal(data, &props); err != nil {
		return task.Task{}, fmt.Errorf("%w: task %s: %v", ErrMalformed, id, err)
	}
	desc := props["description"]
	if strings.TrimSpace(desc) == "" {
		return task.Task{}, fmt.Errorf("%w: task %s has no description", ErrMalformed, id)
	}

	t := task.Task{
		ID:          workingID,
		UUID:        id,
		Description: desc,
		Project:     props["project"],
		Priority:    task.ParsePriority(props["priority"]),
		Status:      task.ParseStatus(props["status"]),
	}

	var err error
	stamp := func(key string) *time.Time {
		v, ok := props[key]
		if !ok || v == "" || err != nil {
			return nil
		}
		ts, perr := task.ParseTime(v)
		if perr != nil {
			err = fmt.Errorf("%w: task %s: %s: %v", ErrMalformed, id, key, perr)
			return nil
		}
		return &ts
	}
	if e := stamp("entry"); e != nil {
		t.Entry = *e
	}
	if m := stamp("modified"); m != nil {
		t.Modified = *m
	}
	t.Due = stamp("due")
	t.Wait = stamp("wait")
	t.Scheduled = stamp("scheduled")
	t.Start = stamp("start")
	t.End = stamp("end")
	t.Until = stamp("until")
	if err != nil {
		return task.Task{}, err
	}
	if t.Modified.IsZero() {
		t.Modified = t.Entry
	}

	for key, value := range props {
		switch {
		case strings.HasPrefix(key, "tag_"):
			t.Tags = append(t.Tags, strings.TrimPrefix(key, "tag_"))
		case strings.HasPrefix(key, "dep_"):
			t.Depends = append(t.Depends, strings.TrimPrefix(key, "dep_"))
		case strings.HasPrefix(key, "annotation_"):
			entry, perr := task.ParseTime(strings.TrimPrefix(key, "annotation_"))
			if perr != nil {
				return task.Task{}, fmt.Errorf("%w: task %s: %s", ErrMalformed, id, key)
			}
			t.Annotations = append(t.Annotations, task.Annotation{Entry: entry, Description: value})
		}
	}
	slices.Sort(t.Tags)
	slices.Sort(t.Depends)
	slices.SortFunc(t.Annotations, func(a, b task.Annotation) int { return a.Entry.Compare(b.Entry) })

	// Waiting is not stored; it is a pending task whose wait date is ahead.
	if t.Status == task.StatusPending && t.Wait != nil && t.Wait.After(now) {
		t.Status = task.StatusWaiting
	}
	t.Urgency = task.Urgency(t, now)
	return t, nil
}

// Package snapshot persists ranked catalogs between runs.
//
// A snapshot is a named list of video records. Two names are used by a run:
// the main catalog and the list of videos new since the previous run.
// Backends store the same JSON record shape so a snapshot written by one can
// be exported and read by another.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/clitic/music/internal/aggregator"
)

// Well-known snapshot names.
const (
	NameCatalog = "data"
	NameNew     = "data-newly-added"
)

var (
	// ErrNotFound is returned by Read when the snapshot was never written.
	ErrNotFound = errors.New("snapshot not found")
	// ErrCorrupt is returned by Read when stored data cannot be decoded.
	ErrCorrupt = errors.New("snapshot corrupt")
	// ErrLocked is returned when another run holds the snapshot lock.
	ErrLocked = errors.New("snapshot locked by another run")
	// ErrCountOverflow is returned by Write when a backend cannot store a
	// counter exactly.
	ErrCountOverflow = errors.New("count exceeds what the backend can store")
)

// Error describes a failed snapshot operation.
type Error struct {
	Op   string
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("snapshot %s %q: %v", e.Op, e.Name, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Store reads and writes named snapshots.
type Store interface {
	Exists(ctx context.Context, name string) (bool, error)
	Read(ctx context.Context, name string) ([]aggregator.VideoRecord, error)
	Write(ctx context.Context, name string, records []aggregator.VideoRecord) error
	// Delete removes the named snapshot. Removing a missing one is not an
	// error.
	Delete(ctx context.Context, name string) error
	Close() error
}

// Locker is implemented by stores that can keep other runs from writing
// while a run is in progress.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock() error
}

func corrupt(name string, err error) error {
	return &Error{Op: "read", Name: name, Err: fmt.Errorf("%w: %v", ErrCorrupt, err)}
}

// encodeRecords renders records as a compact JSON array. A nil slice is
// written as an empty array.
func encodeRecords(records []aggregator.VideoRecord) ([]byte, error) {
	if records == nil {
		records = []aggregator.VideoRecord{}
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeRecords parses a JSON array of records and checks every record has
// an id.
func decodeRecords(data []byte) ([]aggregator.VideoRecord, error) {
	var records []aggregator.VideoRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	if records == nil {
		return nil, errors.New("not a JSON array")
	}
	if err := validate(records); err != nil {
		return nil, err
	}
	return records, nil
}

func validate(records []aggregator.VideoRecord) error {
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record %d has no id", i)
		}
		if s := r.TrendScore; s != nil && (*s < 0 || *s > 100) {
			return fmt.Errorf("record %s has trend score %v outside [0,100]", r.ID, *s)
		}
	}
	return nil
}

package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// lockRetry is how often a blocked Update retries the file lock.
const lockRetry = 10 * time.Millisecond

// errCorrupt marks a state file that does not hold a JSON object.
var errCorrupt = errors.New("corrupt state file")

// FileStore keeps the record in a JSON file. Writes go through a tmp file
// and rename; Update additionally holds an exclusive flock on <path>.lock so
// instances in other processes are serialized too.
type FileStore struct {
	path   string
	flock  *flock.Flock
	mu     sync.Mutex
	closed bool
}

// NewFileStore opens or initializes the JSON state file.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	s := &FileStore{path: path, flock: flock.New(path + ".lock")}

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		unlock, err := s.lock(context.Background())
		if err != nil {
			return nil, err
		}
		defer unlock()
		// Another process may have created it while we waited for the lock.
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if err := s.save(Record{}); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// load reads the state file. A missing file is an empty record. Values of
// the wrong JSON type are converted to strings or dropped so callers can
// coerce them.
func (s *FileStore) load() (Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, nil
		}
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Record{}, nil
	}

	raw := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w: %w", s.path, errCorrupt, err)
	}

	rec := make(Record, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			rec[k] = val
		case json.Number:
			rec[k] = val.String()
		case bool:
			rec[k] = strconv.FormatBool(val)
		}
	}
	return rec, nil
}

// loadOrRecover reads the state file. A corrupt file is moved to
// <path>.corrupt and read as an empty record, so the next save replaces it.
// The caller must hold the file lock.
func (s *FileStore) loadOrRecover() (Record, error) {
	rec, err := s.load()
	if !errors.Is(err, errCorrupt) {
		return rec, err
	}
	log.Printf("Discarding unreadable state file %s: %v", s.path, err)
	if err := os.Rename(s.path, s.path+".corrupt"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("set aside %s: %w", s.path, err)
	}
	return Record{}, nil
}

// save atomically writes the state file to disk.
func (s *FileStore) save(rec Record) error {
	tmp := s.path + ".tmp"
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tmp, s.path)
}

// lock takes the cross-process exclusive lock, giving up when ctx ends.
func (s *FileStore) lock(ctx context.Context) (func(), error) {
	locked, err := s.flock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("flock %s: %w", s.flock.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("flock %s: %w", s.flock.Path(), ErrStoreUnavailable)
	}
	return func() {
		_ = s.flock.Unlock()
	}, nil
}

func (s *FileStore) Get(_ context.Context, keys ...string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	rec, err := s.load()
	if errors.Is(err, errCorrupt) {
		// Left for the next Update to set aside under the file lock.
		return Record{}, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.Pick(keys...), nil
}

func (s *FileStore) Set(ctx context.Context, rec Record) error {
	return s.Update(ctx, func(Record) (Record, error) {
		return rec, nil
	})
}

func (s *FileStore) Update(ctx context.Context, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := s.loadOrRecover()
	if err != nil {
		return err
	}
	changes, err := fn(current.Clone())
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}
	for k, v := range changes {
		current[k] = v
	}
	return s.save(current)
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.flock.Close()
}

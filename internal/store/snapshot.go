// Package store persists navigation state: local session snapshots and the
// fleet breadcrumb trail.
package store

import (
	"compress/flate"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Bucknalla/go-truck-nav/nav"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

const snapshotExt = ".msgpack.z"

var ErrNoSnapshot = errors.New("no snapshot stored")

// SnapshotStore keeps the latest state of each session as a flate
// compressed msgpack file.
type SnapshotStore struct {
	dir string
}

// NewSnapshotStore creates the snapshot directory if needed.
func NewSnapshotStore(dir string) (*SnapshotStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	return &SnapshotStore{dir: dir}, nil
}

func (s *SnapshotStore) path(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String()+snapshotExt)
}

// Save writes state, replacing the previous snapshot of the same session.
func (s *SnapshotStore) Save(state nav.State) error {
	f, err := os.CreateTemp(s.dir, ".snapshot-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	defer f.Close()

	fw, err := flate.NewWriter(f, flate.BestSpeed)
	if err != nil {
		return err
	}
	if err := msgpack.NewEncoder(fw).Encode(state); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := fw.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), s.path(state.SessionID))
}

// loadFile reads a snapshot and reports when it was written.
func (s *SnapshotStore) loadFile(path string) (nav.State, time.Time, error) {
	var state nav.State

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return state, time.Time{}, ErrNoSnapshot
	} else if err != nil {
		return state, time.Time{}, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return state, time.Time{}, err
	}

	fr := flate.NewReader(f)
	defer fr.Close()

	if err := msgpack.NewDecoder(fr).Decode(&state); err != nil {
		return state, time.Time{}, fmt.Errorf("failed to decode snapshot %s: %w", filepath.Base(path), err)
	}
	return state, fi.ModTime(), nil
}

type snapshotFile struct {
	path    string
	modTime time.Time
}

func (s *SnapshotStore) files() ([]snapshotFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var files []snapshotFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), snapshotExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, snapshotFile{path: filepath.Join(s.dir, e.Name()), modTime: info.ModTime()})
	}

	// Newest first
	slices.SortFunc(files, func(a, b snapshotFile) int {
		return b.modTime.Compare(a.modTime)
	})
	return files, nil
}

// Latest returns the most recently written snapshot.
func (s *SnapshotStore) Latest() (nav.State, time.Time, error) {
	files, err := s.files()
	if err != nil {
		return nav.State{}, time.Time{}, err
	}
	if len(files) == 0 {
		return nav.State{}, time.Time{}, ErrNoSnapshot
	}
	return s.loadFile(files[0].path)
}

// Prune removes all but the keep most recent snapshots.
func (s *SnapshotStore) Prune(keep int) error {
	files, err := s.files()
	if err != nil {
		return err
	}
	for _, f := range files[min(keep, len(files)):] {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

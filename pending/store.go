// Package pending tracks captures that are on disk but not yet accepted
// by the server. The filesystem is the source of truth; the in-memory
// list is a view refreshed from it and adjusted as uploads settle.
package pending

import (
	"sync"

	"kiku/recorder"
)

// Source is the disk side of the store; *recorder.Engine satisfies it.
type Source interface {
	Enumerate() ([]recorder.Capture, error)
	Delete(recorder.Capture) error
}

// Store is safe for concurrent use.
type Store struct {
	src Source

	mu    sync.Mutex
	items []recorder.Capture
}

func New(src Source) *Store {
	return &Store{src: src}
}

// Refresh rebuilds the list from disk, newest first.
func (s *Store) Refresh() error {
	caps, err := s.src.Enumerate()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.items = caps
	s.mu.Unlock()
	return nil
}

// Prepend puts a capture at the head of the list. A capture already
// listed for the same slot is replaced in place instead, so a re-recorded
// slot never appears twice.
func (s *Store) Prepend(c recorder.Capture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].Key == c.Key {
			s.items[i] = c
			return
		}
	}
	s.items = append([]recorder.Capture{c}, s.items...)
}

// Remove deletes the backing file and drops the capture from the list.
// Called after the server accepts an upload; a missing file is fine.
func (s *Store) Remove(c recorder.Capture) error {
	if err := s.src.Delete(c); err != nil {
		return err
	}
	s.drop(c)
	return nil
}

// Drop removes the capture from the list without touching disk.
func (s *Store) Drop(c recorder.Capture) {
	s.drop(c)
}

func (s *Store) drop(c recorder.Capture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].Key == c.Key {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}

// Snapshot returns a copy of the current list, newest first.
func (s *Store) Snapshot() []recorder.Capture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recorder.Capture(nil), s.items...)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

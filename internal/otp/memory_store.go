package otp

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. Records do not survive a restart
// and are not shared between instances.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Put(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Email] = *rec
	return nil
}

func (s *MemoryStore) Get(_ context.Context, email string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[email]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) Delete(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, email)
	return nil
}

func (s *MemoryStore) ReserveAttempt(_ context.Context, email string, now time.Time, max int) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[email]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.Expired(now) {
		delete(s.records, email)
		return nil, ErrExpired
	}
	if rec.Attempts >= max {
		delete(s.records, email)
		return nil, ErrTooManyAttempts
	}
	rec.Attempts++
	s.records[email] = rec
	return &rec, nil
}

func (s *MemoryStore) Consume(_ context.Context, rec *Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[rec.Email]
	if !ok || !cur.SameIssue(rec) {
		return false, nil
	}
	delete(s.records, rec.Email)
	return true, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for email, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, email)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// MemoryLimiter is a fixed-window counter per key.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	windows map[string]memoryWindow
}

type memoryWindow struct {
	count   int
	resetAt time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		windows: make(map[string]memoryWindow),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.windows[key]
	if now.After(w.resetAt) {
		w = memoryWindow{resetAt: now.Add(l.window)}
	}
	w.count++
	l.windows[key] = w
	return w.count <= l.limit, nil
}

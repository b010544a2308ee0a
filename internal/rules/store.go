package rules

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store owns the active RuleSet.
//
// Readers take the read lock only long enough to copy the pointer.
// Writers (Append, Reload, Publish) are serialized by writeMu and do all
// file I/O and parsing before taking the write lock for the swap.
type Store struct {
	path   string
	logger *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	active *RuleSet

	writeMu sync.Mutex
	version int64
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for append stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store backed by the rule file at path. An empty path
// keeps rules in memory only. The store starts with an empty set; call
// Reload to load the file.
func NewStore(path string, opts ...Option) *Store {
	s := &Store{
		path:   path,
		logger: zap.NewNop(),
		now:    time.Now,
		active: emptyRuleSet(path),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Path returns the backing rule file.
func (s *Store) Path() string { return s.path }

// Snapshot returns the active set. The set is immutable; it is never nil.
func (s *Store) Snapshot() *RuleSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Publish makes rs the active set and returns it stamped with the next version.
func (s *Store) Publish(rs *RuleSet) *RuleSet {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.publishLocked(rs)
}

func (s *Store) publishLocked(rs *RuleSet) *RuleSet {
	s.version++
	stamped := rs.withVersion(s.version)

	s.mu.Lock()
	s.active = stamped
	s.mu.Unlock()

	s.logger.Info("rule set published",
		zap.Int64("version", stamped.version),
		zap.Int("rules", stamped.Len()),
		zap.String("ruleset_hash", stamped.hash),
	)
	return stamped
}

// Reload re-reads the rule file. A missing file yields an empty set.
// When the file content is unchanged the active set is returned as is.
// On error the active set is left untouched.
func (s *Store) Reload(ctx context.Context) (*RuleSet, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cur := s.Snapshot()
	if s.path == "" {
		return cur, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	if cur.version > 0 && cur.hash == hashBytes(data) {
		s.logger.Debug("rules unchanged, skipping publish", zap.String("ruleset_hash", cur.hash))
		return cur, nil
	}

	next, err := Parse(data, s.path)
	if err != nil {
		return nil, err
	}
	return s.publishLocked(next), nil
}

// Append adds r to the active set. It fails with a *DuplicateRuleError
// when the id is taken, leaving the active set unchanged. With a backing
// file the new document is written before the set is published.
func (s *Store) Append(ctx context.Context, r Rule) (*RuleSet, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := Compile(r)
	if err != nil {
		return nil, &ParseError{Index: 0, RuleID: r.ID, Err: err}
	}
	if c.ID == "" {
		return nil, &ParseError{Index: 0, Err: errors.New("id is required")}
	}

	cur := s.Snapshot()
	if cur.Has(c.ID) {
		return nil, &DuplicateRuleError{ID: c.ID}
	}

	if s.path == "" {
		next, err := cur.with(c, cur.source)
		if err != nil {
			return nil, err
		}
		return s.publishLocked(next), nil
	}

	existing, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	data, err := appendToDocument(existing, c, s.now())
	if err != nil {
		return nil, &ParseError{Source: s.path, Index: -1, Err: err}
	}
	next, err := Parse(data, s.path)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return nil, fmt.Errorf("failed to write rules: %w", err)
	}

	s.logger.Info("rule appended", zap.String("rule_id", c.ID), zap.String("path", s.path))
	return s.publishLocked(next), nil
}

// Package cache memoizes classifier scores in BadgerDB.
//
// Scoring a perturbation is the expensive step of a counterfactual search,
// and repeated searches over the same instance (re-runs, batch jobs with
// overlapping rows) score identical vectors. Entries are keyed by a namespace
// naming the model plus the exact vector content.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/FrenchMajesty/evidence-counterfactual/pkg/sparse"
)

// Config holds configuration for the score cache
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory keeps the cache in RAM only
	InMemory bool

	// Namespace separates scores of different models
	Namespace string

	// TTL expires entries after the given duration. Zero keeps entries forever.
	TTL time.Duration

	// Logger receives BadgerDB logs. If nil, BadgerDB logging is disabled.
	Logger *zap.Logger
}

// scorer mirrors counterfactual.Scorer
type scorer interface {
	Score(ctx context.Context, instance sparse.Vector) (float64, error)
}

// Scorer wraps another scorer and memoizes its results
type Scorer struct {
	next      scorer
	db        *badger.DB
	namespace string
	ttl       time.Duration
	logger    *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// badgerLogger adapts zap to BadgerDB's Logger interface
type badgerLogger struct {
	sugar *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...any)   { l.sugar.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...any) { l.sugar.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...any)    { l.sugar.Infof(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...any)   { l.sugar.Debugf(format, args...) }

// Open opens the BadgerDB instance described by cfg. Caller must Close it.
func Open(cfg Config) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("cache path is required unless in-memory")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{sugar: cfg.Logger.Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open score cache: %w", err)
	}
	return db, nil
}

// NewScorer wraps next with a cache stored in db
func NewScorer(next scorer, db *badger.DB, cfg Config) *Scorer {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scorer{
		next:      next,
		db:        db,
		namespace: cfg.Namespace,
		ttl:       cfg.TTL,
		logger:    logger,
	}
}

// Score returns the cached score for instance or computes and stores it.
// Cache read or write failures fall back to the wrapped scorer.
func (s *Scorer) Score(ctx context.Context, instance sparse.Vector) (float64, error) {
	key := s.key(instance)

	score, ok, err := s.get(key)
	if err != nil {
		s.logger.Warn("score cache read failed", zap.Error(err))
	} else if ok {
		s.hits.Add(1)
		return score, nil
	}
	s.misses.Add(1)

	score, err = s.next.Score(ctx, instance)
	if err != nil {
		return 0, err
	}

	if err := s.put(key, score); err != nil {
		s.logger.Warn("score cache write failed", zap.Error(err))
	}
	return score, nil
}

// Stats returns the number of cache hits and misses so far
func (s *Scorer) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

func (s *Scorer) get(key []byte) (float64, bool, error) {
	var score float64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupt cache entry of %d bytes", len(val))
			}
			score = math.Float64frombits(binary.BigEndian.Uint64(val))
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return score, true, nil
}

func (s *Scorer) put(key []byte, score float64) error {
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, math.Float64bits(score))

	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, val)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// key hashes the namespace and the full vector content
func (s *Scorer) key(instance sparse.Vector) []byte {
	h := sha256.New()
	h.Write([]byte(s.namespace))
	h.Write([]byte{0})

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(instance.Dim()))
	h.Write(buf)
	instance.Each(func(index int, value float64) {
		binary.BigEndian.PutUint64(buf, uint64(index))
		h.Write(buf)
		binary.BigEndian.PutUint64(buf, math.Float64bits(value))
		h.Write(buf)
	})

	return append([]byte("score/"), h.Sum(nil)...)
}

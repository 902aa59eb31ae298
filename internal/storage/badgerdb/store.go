// Package badgerdb is an embedded verification log store on dgraph-io/badger.
//
// Key layout:
//
//	log:<id>                 JSON-encoded VerificationLog
//	sub:<submission id>      log id, for idempotent appends
//	time:<inverted ns>:<id>  log id, iterated forward for newest-first order
package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
	"github.com/tjfontaine/behavior-verify-gateway/internal/core/ports"
)

const (
	logKeyPrefix  = "log:"
	subKeyPrefix  = "sub:"
	timeKeyPrefix = "time:"

	maxConflictRetries = 5
)

// Store implements ports.LogStore on Badger. Appends run in optimistic
// transactions, so concurrent writers never share a lock.
type Store struct {
	db *badger.DB
}

var _ ports.LogStore = (*Store)(nil)

// Open opens a store at path. An empty path keeps everything in memory.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an already opened database.
func New(db *badger.DB) *Store {
	return &Store{db: db}
}

// timeKey orders the index newest first. Both the timestamp and the id are
// inverted, so logs sharing a timestamp come back in descending id order like
// the SQL and memory stores. The trailing 0xff sorts an id before any id it
// is a prefix of.
func timeKey(l *domain.VerificationLog) []byte {
	inverted := uint64(math.MaxInt64 - l.SubmittedAt.UnixNano())
	key := []byte(fmt.Sprintf("%s%020d:", timeKeyPrefix, inverted))
	for _, b := range []byte(l.ID) {
		key = append(key, ^b)
	}
	return append(key, 0xff)
}

func (s *Store) AppendLog(ctx context.Context, log *domain.VerificationLog) (domain.LogID, error) {
	if log.ID == "" {
		log.ID = domain.LogID(uuid.NewString())
	}
	stored := *log
	stored.SubmittedAt = stored.SubmittedAt.UTC()
	data, err := json.Marshal(&stored)
	if err != nil {
		return "", &domain.PersistenceError{Op: "encode", Err: err}
	}

	var id domain.LogID
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", &domain.PersistenceError{Op: "append", Err: err}
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			subKey := []byte(subKeyPrefix + stored.SubmissionID)
			item, err := txn.Get(subKey)
			if err == nil {
				return item.Value(func(val []byte) error {
					id = domain.LogID(val)
					return nil
				})
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			if err := txn.Set([]byte(logKeyPrefix+string(stored.ID)), data); err != nil {
				return fmt.Errorf("set log: %w", err)
			}
			if err := txn.Set(subKey, []byte(stored.ID)); err != nil {
				return fmt.Errorf("set submission index: %w", err)
			}
			if err := txn.Set(timeKey(&stored), []byte(stored.ID)); err != nil {
				return fmt.Errorf("set time index: %w", err)
			}
			id = stored.ID
			return nil
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return "", &domain.PersistenceError{Op: "append", Err: err}
	}
	return id, nil
}

func getLog(txn *badger.Txn, id string) (*domain.VerificationLog, error) {
	item, err := txn.Get([]byte(logKeyPrefix + id))
	if err != nil {
		return nil, err
	}
	var l domain.VerificationLog
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &l)
	}); err != nil {
		return nil, err
	}
	return &l, nil
}

// scan visits logs newest first until fn returns false.
func (s *Store) scan(fn func(*domain.VerificationLog) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(timeKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var id string
			if err := it.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}
			l, err := getLog(txn, id)
			if err != nil {
				return fmt.Errorf("load %s: %w", id, err)
			}
			if !fn(l) {
				return nil
			}
		}
		return nil
	})
}

func (s *Store) ListLogs(ctx context.Context, opts domain.LogListOptions) ([]*domain.VerificationLog, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	logs := make([]*domain.VerificationLog, 0, limit)
	skipped := 0
	err := s.scan(func(l *domain.VerificationLog) bool {
		if !opts.Filter.Matches(l) {
			return true
		}
		if skipped < opts.Offset {
			skipped++
			return true
		}
		logs = append(logs, l)
		return len(logs) < limit
	})
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list", Err: err}
	}
	return logs, nil
}

func (s *Store) CountLogs(ctx context.Context, filter domain.LogFilter) (int, error) {
	n := 0
	err := s.scan(func(l *domain.VerificationLog) bool {
		if filter.Matches(l) {
			n++
		}
		return true
	})
	if err != nil {
		return 0, &domain.PersistenceError{Op: "count", Err: err}
	}
	return n, nil
}

func (s *Store) GetLog(ctx context.Context, id domain.LogID) (*domain.VerificationLog, error) {
	if strings.TrimSpace(string(id)) == "" {
		return nil, domain.ErrLogNotFound
	}
	var l *domain.VerificationLog
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		l, err = getLog(txn, string(id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrLogNotFound
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get", Err: err}
	}
	return l, nil
}

func (s *Store) FindBySubmission(ctx context.Context, submissionID string) (*domain.VerificationLog, error) {
	var l *domain.VerificationLog
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(subKeyPrefix + submissionID))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		l, err = getLog(txn, string(id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrLogNotFound
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "find", Err: err}
	}
	return l, nil
}

func (s *Store) Stats(ctx context.Context) (*domain.LogStats, error) {
	stats := &domain.LogStats{}
	err := s.scan(func(l *domain.VerificationLog) bool {
		stats.Total++
		switch l.VerdictLabel() {
		case "bot":
			stats.Bot++
		case "human":
			stats.Human++
		default:
			stats.Unknown++
		}
		return true
	})
	if err != nil {
		return nil, &domain.PersistenceError{Op: "stats", Err: err}
	}
	return stats, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

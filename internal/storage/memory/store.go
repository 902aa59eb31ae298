// Package memory is an in-process verification log store for tests and
// single-node development.
package memory

import (
	"cmp"
	"context"
	"hash/fnv"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
	"github.com/tjfontaine/behavior-verify-gateway/internal/core/ports"
)

const shardCount = 16

// shard owns the logs whose submission id hashes to it.
type shard struct {
	mu           sync.RWMutex
	logs         map[domain.LogID]*domain.VerificationLog
	bySubmission map[string]domain.LogID
}

// Store is an in-memory implementation of ports.LogStore. Logs are spread
// over independently locked shards so appends for different submissions do
// not contend on one lock.
type Store struct {
	shards [shardCount]*shard
}

var _ ports.LogStore = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &shard{
			logs:         make(map[domain.LogID]*domain.VerificationLog),
			bySubmission: make(map[string]domain.LogID),
		}
	}
	return s
}

func (s *Store) shardFor(submissionID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(submissionID))
	return s.shards[h.Sum32()%shardCount]
}

func (s *Store) AppendLog(ctx context.Context, log *domain.VerificationLog) (domain.LogID, error) {
	if err := ctx.Err(); err != nil {
		return "", &domain.PersistenceError{Op: "append", Err: err}
	}
	sh := s.shardFor(log.SubmissionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if id, ok := sh.bySubmission[log.SubmissionID]; ok {
		return id, nil
	}
	if log.ID == "" {
		log.ID = domain.LogID(uuid.NewString())
	}
	stored := *log
	sh.logs[stored.ID] = &stored
	sh.bySubmission[stored.SubmissionID] = stored.ID
	return stored.ID, nil
}

func (s *Store) collect(filter domain.LogFilter) []*domain.VerificationLog {
	var out []*domain.VerificationLog
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, l := range sh.logs {
			if filter.Matches(l) {
				out = append(out, l)
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

func (s *Store) ListLogs(ctx context.Context, opts domain.LogListOptions) ([]*domain.VerificationLog, error) {
	logs := s.collect(opts.Filter)
	slices.SortFunc(logs, func(a, b *domain.VerificationLog) int {
		if c := b.SubmittedAt.Compare(a.SubmittedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	if opts.Offset >= len(logs) {
		return []*domain.VerificationLog{}, nil
	}
	end := min(opts.Offset+limit, len(logs))

	out := make([]*domain.VerificationLog, 0, end-opts.Offset)
	for _, l := range logs[opts.Offset:end] {
		c := *l
		out = append(out, &c)
	}
	return out, nil
}

func (s *Store) CountLogs(ctx context.Context, filter domain.LogFilter) (int, error) {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, l := range sh.logs {
			if filter.Matches(l) {
				n++
			}
		}
		sh.mu.RUnlock()
	}
	return n, nil
}

func (s *Store) GetLog(ctx context.Context, id domain.LogID) (*domain.VerificationLog, error) {
	for _, sh := range s.shards {
		sh.mu.RLock()
		l, ok := sh.logs[id]
		sh.mu.RUnlock()
		if ok {
			c := *l
			return &c, nil
		}
	}
	return nil, domain.ErrLogNotFound
}

func (s *Store) FindBySubmission(ctx context.Context, submissionID string) (*domain.VerificationLog, error) {
	sh := s.shardFor(submissionID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	id, ok := sh.bySubmission[submissionID]
	if !ok {
		return nil, domain.ErrLogNotFound
	}
	c := *sh.logs[id]
	return &c, nil
}

func (s *Store) Stats(ctx context.Context) (*domain.LogStats, error) {
	stats := &domain.LogStats{}
	for _, l := range s.collect(domain.LogFilter{}) {
		stats.Total++
		switch l.VerdictLabel() {
		case "bot":
			stats.Bot++
		case "human":
			stats.Human++
		default:
			stats.Unknown++
		}
	}
	return stats, nil
}

func (s *Store) Close() error {
	return nil
}

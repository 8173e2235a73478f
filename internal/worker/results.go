package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultResultTTL is how long a job outcome stays readable.
const DefaultResultTTL = time.Hour

const resultKeyPrefix = "analysis:"

// ResultStore keeps async analysis outcomes in the cache so any replica can
// answer a status query. It records "pending" on submission and the final
// result once analysis.completed arrives.
type ResultStore struct {
	cache domain.Cache
	ttl   time.Duration

	mu  sync.Mutex
	sub domain.Subscription
}

// NewResultStore creates a store over cache. A non-positive ttl uses
// DefaultResultTTL.
func NewResultStore(cache domain.Cache, ttl time.Duration) *ResultStore {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &ResultStore{cache: cache, ttl: ttl}
}

// Start subscribes to analysis.completed on bus.
func (s *ResultStore) Start(ctx context.Context, bus domain.EventBus) error {
	sub, err := bus.Subscribe(ctx, domain.TopicAnalysisCompleted, s.handleResult)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", domain.TopicAnalysisCompleted, err)
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	return nil
}

// Stop ends the subscription.
func (s *ResultStore) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return nil
	}
	err := s.sub.Unsubscribe()
	s.sub = nil
	return err
}

func (s *ResultStore) handleResult(ctx context.Context, msg *domain.Message) error {
	var result domain.AnalysisResult
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		slog.Error("failed to parse analysis result",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if result.JobID == "" {
		return nil
	}
	return s.Save(ctx, result)
}

// MarkPending records that jobID was submitted.
func (s *ResultStore) MarkPending(ctx context.Context, jobID, kind string) error {
	return s.Save(ctx, domain.AnalysisResult{
		JobID:  jobID,
		Kind:   kind,
		Status: domain.AnalysisPending,
	})
}

// Save stores result under its job id.
func (s *ResultStore) Save(ctx context.Context, result domain.AnalysisResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode analysis result: %w", err)
	}
	if err := s.cache.Set(ctx, resultKeyPrefix+result.JobID, raw, s.ttl); err != nil {
		return domain.NewDependencyError("saveAnalysisResult", err)
	}
	return nil
}

// Get returns the latest known state of jobID, or domain.ErrNotFound.
func (s *ResultStore) Get(ctx context.Context, jobID string) (*domain.AnalysisResult, error) {
	raw, err := s.cache.Get(ctx, resultKeyPrefix+jobID)
	if err != nil {
		return nil, domain.NewDependencyError("getAnalysisResult", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: analysis job %s", domain.ErrNotFound, jobID)
	}
	var result domain.AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode analysis result: %w", err)
	}
	return &result, nil
}

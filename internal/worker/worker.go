// Package worker runs analysis jobs received from the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Analyzer is the analysis surface the worker drives.
type Analyzer interface {
	MostProductiveSeller(ctx context.Context, startStr, endStr string) (*domain.Seller, error)
	SellersBelowThreshold(ctx context.Context, startStr, endStr string, threshold float64, page domain.PageRequest) (*domain.Page[domain.Seller], error)
	BestPeriodForSeller(ctx context.Context, durationDays int64, sellerID string) (*domain.Period, error)
}

// Worker consumes analysis.requested and publishes analysis.completed.
type Worker struct {
	mu       sync.Mutex
	bus      domain.EventBus
	analyzer Analyzer

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new analysis worker.
func NewWorker(bus domain.EventBus, analyzer Analyzer) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		analyzer: analyzer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to analysis requests.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicAnalysisRequested, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", domain.TopicAnalysisRequested, err)
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("analysis worker started",
		"topic", domain.TopicAnalysisRequested,
	)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	w.wg.Add(1)
	defer w.wg.Done()

	var req domain.AnalysisRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse analysis request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if req.JobID == "" {
		req.JobID = msg.ID
	}

	result := w.Run(ctx, req)

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode analysis result: %w", err)
	}
	if err := w.bus.Publish(ctx, domain.TopicAnalysisCompleted, payload); err != nil {
		slog.Error("failed to publish analysis result",
			"job_id", req.JobID,
			"error", err,
		)
		return err
	}
	return nil
}

// Run executes one analysis request and reports its outcome. Failures are
// carried in the result, never returned.
func (w *Worker) Run(ctx context.Context, req domain.AnalysisRequest) domain.AnalysisResult {
	start := time.Now()
	result := domain.AnalysisResult{
		JobID: req.JobID,
		Kind:  req.Kind,
	}

	var err error
	switch req.Kind {
	case domain.AnalysisMostProductive:
		result.Seller, err = w.analyzer.MostProductiveSeller(ctx, req.StartDate, req.EndDate)

	case domain.AnalysisBelowThreshold:
		page := domain.PageRequest{Page: req.Page, Size: req.Size}
		if page.Size == 0 {
			page.Size = domain.DefaultPageSize
		}
		result.Sellers, err = w.analyzer.SellersBelowThreshold(ctx, req.StartDate, req.EndDate, req.Threshold, page)

	case domain.AnalysisBestPeriod:
		result.Period, err = w.analyzer.BestPeriodForSeller(ctx, req.DurationInDays, req.SellerID)

	default:
		err = fmt.Errorf("%w: unknown analysis kind %q", domain.ErrInvalidInput, req.Kind)
	}

	result.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Status = domain.AnalysisFailed
		result.Error = err.Error()
		result.ErrorKind = domain.ErrorCode(err)

		level := slog.LevelWarn
		var depErr *domain.DependencyError
		if errors.As(err, &depErr) {
			level = slog.LevelError
		}
		slog.Log(ctx, level, "analysis job failed",
			"job_id", req.JobID,
			"kind", req.Kind,
			"error_kind", result.ErrorKind,
			"error", err,
		)
		return result
	}

	result.Status = domain.AnalysisCompleted
	slog.Info("analysis job completed",
		"job_id", req.JobID,
		"kind", req.Kind,
		"duration_ms", result.DurationMs,
	)
	return result
}

// Stop unsubscribes and waits for in-flight jobs.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	w.mu.Unlock()

	w.wg.Wait()

	slog.Info("analysis worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}

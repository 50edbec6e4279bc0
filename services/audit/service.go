package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/supplywise/auth-gateway/models"
	"github.com/supplywise/auth-gateway/repositories"
	"go.uber.org/zap"
)

var (
	// ErrNotStarted is returned when the service is used before Start or after Stop
	ErrNotStarted = errors.New("audit service not running")

	// ErrBufferFull is returned when a decision is dropped because the buffer is full
	ErrBufferFull = errors.New("audit buffer full")
)

// AuditService writes access decisions to the repository in the background
type AuditService struct {
	repo        repositories.AccessDecisionRepository
	logger      *zap.Logger
	eventChan   chan *models.AccessDecision
	workerCount int
	bufferSize  int
	batchSize   int
	denialsOnly bool
	wg          sync.WaitGroup
	mu          sync.RWMutex
	started     bool
	stopped     bool
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize  int  // Size of the event buffer channel
	WorkerCount int  // Number of concurrent workers
	BatchSize   int  // Maximum decisions written per transaction
	DenialsOnly bool // Skip allowed decisions
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  10000,
		WorkerCount: 2,
		BatchSize:   50,
		DenialsOnly: true,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repositories.AccessDecisionRepository, logger *zap.Logger, config Config) *AuditService {
	if config.BatchSize <= 0 {
		config.BatchSize = 1
	}
	return &AuditService{
		repo:        repo,
		logger:      logger,
		eventChan:   make(chan *models.AccessDecision, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		batchSize:   config.BatchSize,
		denialsOnly: config.DenialsOnly,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize),
		zap.Bool("denials_only", s.denialsOnly))

	return nil
}

// Stop stops accepting decisions and waits for queued ones to be written
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.stopped = true
	pending := len(s.eventChan)
	// Record holds the read lock while sending, so no send can race this close
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", pending))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// Record queues a decision without blocking the request
func (s *AuditService) Record(_ context.Context, decision *models.AccessDecision) error {
	if s.denialsOnly && decision.Allowed() {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		return ErrNotStarted
	}

	select {
	case s.eventChan <- decision:
		return nil
	default:
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("request_id", decision.RequestID),
			zap.String("path", decision.Path))
		return ErrBufferFull
	}
}

// worker drains the channel in batches
func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	batch := make([]*models.AccessDecision, 0, s.batchSize)
	for decision := range s.eventChan {
		batch = append(batch, decision)

	fill:
		for len(batch) < s.batchSize {
			select {
			case next, ok := <-s.eventChan:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}

		if err := s.flush(batch); err != nil {
			s.logger.Error("failed to write audit batch",
				zap.Int("worker_id", id),
				zap.Int("batch_size", len(batch)),
				zap.Error(err))
		}
		batch = batch[:0]
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

func (s *AuditService) flush(batch []*models.AccessDecision) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(batch) == 1 {
		return s.repo.Insert(ctx, batch[0])
	}
	return s.repo.InsertBatch(ctx, batch)
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int  `json:"buffer_size"`
	PendingEvents int  `json:"pending_events"`
	WorkerCount   int  `json:"worker_count"`
	Started       bool `json:"started"`
}

package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"speech-affect/pkg/config"
	"speech-affect/pkg/models"
)

var (
	ErrQueueFull    = errors.New("pipeline queue is full")
	ErrShuttingDown = errors.New("pipeline is shutting down")
	ErrNotStarted   = errors.New("pipeline not started")
)

// Manager runs analyzer jobs on a fixed pool of workers so one slow
// transcode does not hold up unrelated requests.
type Manager struct {
	config   config.PipelineConfig
	analyzer *Analyzer
	metrics  *Metrics
	log      *zap.Logger

	pool *WorkerPool

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(cfg config.PipelineConfig, analyzer *Analyzer, metrics *Metrics, log *zap.Logger) *Manager {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		config:   cfg,
		analyzer: analyzer,
		metrics:  metrics,
		log:      log,
	}
}

func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx != nil {
		return errors.New("pipeline already started")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.pool = NewWorkerPool(m.config.Workers, m.config.QueueSize, m.runJob)
	m.pool.Start(m.ctx)

	m.log.Info("pipeline started",
		zap.Int("workers", m.config.Workers),
		zap.Int("queue_size", m.config.QueueSize),
	)
	return nil
}

// Stop cancels in-flight jobs and waits for the workers to exit.
func (m *Manager) Stop() {
	m.mu.RLock()
	cancel, pool := m.cancel, m.pool
	m.mu.RUnlock()

	if cancel == nil {
		return
	}
	m.log.Info("pipeline stopping")
	cancel()
	pool.Wait()
	m.log.Info("pipeline stopped")
}

// Model identifies the model behind every result this manager produces.
func (m *Manager) Model() string { return m.analyzer.Model() }

// Submit queues the upload and waits for its result. It fails fast with
// ErrQueueFull instead of blocking when every worker is busy.
func (m *Manager) Submit(ctx context.Context, data []byte) (*models.EmotionResponse, error) {
	m.mu.RLock()
	poolCtx, pool := m.ctx, m.pool
	m.mu.RUnlock()

	if poolCtx == nil {
		return nil, ErrNotStarted
	}
	if poolCtx.Err() != nil {
		return nil, ErrShuttingDown
	}

	job := models.NewJob(data)
	if !pool.TrySubmit(&task{ctx: ctx, job: job}) {
		m.metrics.QueueRejections.Inc()
		m.log.Warn("job rejected, queue full", zap.String("job_id", job.ID), zap.Int("size", job.Size))
		return nil, ErrQueueFull
	}
	m.log.Debug("job submitted", zap.String("job_id", job.ID), zap.Int("size", job.Size))

	select {
	case <-job.Done():
		return job.Result, job.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-poolCtx.Done():
		return nil, ErrShuttingDown
	}
}

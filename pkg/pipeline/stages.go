package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"speech-affect/pkg/models"
)

// runJob is the worker body: decode and clean, then classify.
func (m *Manager) runJob(poolCtx context.Context, t *task) {
	job := t.job
	started := time.Now()

	ctx, cancel := m.jobContext(poolCtx, t.ctx)
	defer cancel()

	if err := ctx.Err(); err != nil {
		// The caller gave up while the job sat in the queue.
		job.Finish(nil, err)
		return
	}

	job.Status = models.StatusDecoding
	w, err := m.analyzer.Load(ctx, job.Data)
	if err != nil {
		m.fail(job, err)
		return
	}

	job.Status = models.StatusClassifying
	resp, err := m.analyzer.Classify(ctx, w)
	if err != nil {
		m.fail(job, err)
		return
	}

	elapsed := time.Since(started)
	m.metrics.Duration.Observe(elapsed.Seconds())
	m.log.Info("job completed",
		zap.String("job_id", job.ID),
		zap.String("label", string(resp.Label)),
		zap.String("reason", resp.Reason),
		zap.Float64("seconds", w.Duration()),
		zap.Duration("elapsed", elapsed),
	)
	job.Finish(resp, nil)
}

// jobContext bounds a job by the caller's context, the processing timeout
// and the pool's lifetime.
func (m *Manager) jobContext(poolCtx, reqCtx context.Context) (context.Context, context.CancelFunc) {
	if reqCtx == nil {
		reqCtx = poolCtx
	}
	ctx, cancel := context.WithCancel(reqCtx)
	stop := context.AfterFunc(poolCtx, cancel)

	if m.config.ProcessingTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, m.config.ProcessingTimeout)
		return ctx, func() {
			cancelTimeout()
			stop()
			cancel()
		}
	}
	return ctx, func() {
		stop()
		cancel()
	}
}

// fail logs the stage the job was in before marking it failed.
func (m *Manager) fail(job *models.Job, err error) {
	m.log.Warn("job failed",
		zap.String("job_id", job.ID),
		zap.String("stage", string(job.Status)),
		zap.Error(err),
	)
	job.Finish(nil, err)
}

// Package jobs 定时任务
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ryckox/syntagma/pkg/logger"
)

var (
	// ErrJobNotFound 任务未注册
	ErrJobNotFound = errors.New("job not found")
	// ErrJobRunning 上一次执行尚未结束
	ErrJobRunning = errors.New("job is still running")
)

// Job 定时任务
type Job interface {
	Name() string
	Timeout() time.Duration
	Execute(ctx context.Context) error
}

type jobEntry struct {
	job     Job
	spec    string
	running sync.Mutex
}

// Scheduler 任务调度器
type Scheduler struct {
	cron   *cron.Cron
	jobs   map[string]*jobEntry
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler 创建调度器，支持秒级表达式
func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds(), cron.WithLogger(cronLogger{})),
		jobs:   make(map[string]*jobEntry),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register 注册任务，spec 为空时只注册不调度
func (s *Scheduler) Register(spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("job %s already registered", job.Name())
	}
	entry := &jobEntry{job: job, spec: spec}

	if spec == "" {
		s.jobs[job.Name()] = entry
		logger.Info("job registered but disabled", zap.String("job", job.Name()))
		return nil
	}

	if _, err := s.cron.AddFunc(spec, func() {
		if err := s.execute(entry); errors.Is(err, ErrJobRunning) {
			logger.Warn("previous run still in progress, skipping", zap.String("job", job.Name()))
		}
	}); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.jobs[job.Name()] = entry

	logger.Info("job registered", zap.String("job", job.Name()), zap.String("cron", spec))
	return nil
}

// Start 启动调度器
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop 停止调度器并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("scheduler stopped")
}

// Trigger 立即执行一次任务
func (s *Scheduler) Trigger(name string) error {
	s.mu.RLock()
	entry, exists := s.jobs[name]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return s.execute(entry)
}

// execute 同一任务不会重叠执行
func (s *Scheduler) execute(entry *jobEntry) error {
	if !entry.running.TryLock() {
		return ErrJobRunning
	}
	defer entry.running.Unlock()

	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	job := entry.job
	ctx, cancel := context.WithTimeout(s.ctx, job.Timeout())
	defer cancel()

	start := time.Now()
	logger.Info("starting job", zap.String("job", job.Name()))

	if err := job.Execute(ctx); err != nil {
		logger.Error("job failed",
			zap.String("job", job.Name()),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return err
	}

	logger.Info("job completed",
		zap.String("job", job.Name()),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// cronLogger 将 cron 内部日志转到 zap
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.S().Debugw(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.S().Errorw(msg, append(keysAndValues, "error", err)...)
}

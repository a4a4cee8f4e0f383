package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"sn-sync/backend/config"
)

// Scheduler 定时批处理
// 采集与压缩各自一个 ticker，由同一个 goroutine 串行执行，同一时刻至多一个批次在跑
type Scheduler struct {
	collect CollectService
	compact CompactService
	cfg     config.ScheduleConfig
	logger  *zap.Logger

	mu   sync.Mutex
	done chan struct{}
}

// NewScheduler 创建定时器
func NewScheduler(collect CollectService, compact CompactService, cfg config.ScheduleConfig, logger *zap.Logger) *Scheduler {
	return &Scheduler{collect: collect, compact: compact, cfg: cfg, logger: logger}
}

// Start 启动后台循环，ctx 取消时退出；重复调用无效
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil || s.cfg.CollectInterval <= 0 {
		return
	}
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Wait 等待后台循环退出
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	collectTicker := time.NewTicker(s.cfg.CollectInterval)
	defer collectTicker.Stop()

	// 未配置压缩间隔时 compactC 为 nil，select 永不命中
	var compactC <-chan time.Time
	if s.cfg.CompactInterval > 0 {
		compactTicker := time.NewTicker(s.cfg.CompactInterval)
		defer compactTicker.Stop()
		compactC = compactTicker.C
	}

	s.logger.Info("定时批处理已启动",
		zap.Duration("collect_interval", s.cfg.CollectInterval),
		zap.Duration("compact_interval", s.cfg.CompactInterval),
	)

	if s.cfg.RunOnStart {
		s.runCollect(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("定时批处理已停止")
			return
		case <-collectTicker.C:
			s.runCollect(ctx)
		case <-compactC:
			s.runCompact(ctx)
		}
	}
}

func (s *Scheduler) runCollect(ctx context.Context) {
	res, err := s.collect.CollectAll(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Error("定时采集失败", zap.Error(err))
		return
	}
	s.logger.Info("定时采集完成", zap.String("summary", res.Message), zap.Int("new_records", res.TotalNewRecords))
}

func (s *Scheduler) runCompact(ctx context.Context) {
	res, err := s.compact.CompactAll(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Error("定时压缩失败", zap.Error(err))
		return
	}
	s.logger.Info("定时压缩完成", zap.String("summary", res.Message), zap.Int64("remaining", res.TotalDataCount))
}

package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"sn-sync/backend/internal/portal"
	pkgerrors "sn-sync/backend/pkg/errors"
	"sn-sync/backend/pkg/redis"
)

// PortalClient 门户会话能力，由 *portal.Client 实现
type PortalClient interface {
	Login(ctx context.Context, sn, password string) (*portal.LoginResult, error)
	FetchExport(ctx context.Context, sess *portal.Session) (string, error)
	Purge(ctx context.Context, sess *portal.Session) error
	IsEmptyMarker(body string) bool
}

// RunLocker 设备运行锁
// Acquire 在锁被占用时返回 pkgerrors.ErrDeviceBusy
type RunLocker interface {
	Acquire(ctx context.Context, deviceID uint64) (release func(), err error)
}

// NewRunLocker rdb 为 nil 时不做互斥（自然键幂等已保证数据安全）
func NewRunLocker(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) RunLocker {
	if rdb == nil {
		return noopLocker{}
	}
	return &redisLocker{rdb: rdb, ttl: ttl, logger: logger}
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, uint64) (func(), error) { return func() {}, nil }

type redisLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func (l *redisLocker) Acquire(ctx context.Context, deviceID uint64) (func(), error) {
	lock, err := l.rdb.AcquireLock(ctx, strconv.FormatUint(deviceID, 10), l.ttl)
	if err != nil {
		return nil, err
	}
	if lock == nil {
		return nil, pkgerrors.ErrDeviceBusy
	}
	return func() {
		// 请求上下文可能已取消，释放锁不受其影响
		if err := l.rdb.ReleaseLock(context.WithoutCancel(ctx), lock); err != nil {
			l.logger.Warn("释放设备锁失败", zap.Uint64("device_id", deviceID), zap.Error(err))
		}
	}, nil
}

// acquireRun 获取设备锁；Redis 不可用时降级为无锁运行，与限流中间件策略一致
func acquireRun(ctx context.Context, locker RunLocker, deviceID uint64, logger *zap.Logger) (func(), error) {
	release, err := locker.Acquire(ctx, deviceID)
	if errors.Is(err, pkgerrors.ErrDeviceBusy) {
		return nil, err
	}
	if err != nil {
		logger.Warn("获取设备锁失败，降级为无锁运行", zap.Uint64("device_id", deviceID), zap.Error(err))
		return func() {}, nil
	}
	return release, nil
}

// pace 批处理中相邻设备之间的等待，ctx 取消时提前返回
func pace(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

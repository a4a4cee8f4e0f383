package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"sn-sync/backend/internal/dto"
	"sn-sync/backend/internal/model"
	"sn-sync/backend/internal/repository"
	pkgerrors "sn-sync/backend/pkg/errors"
)

// CompactService 设备压缩业务接口
//
// 单台设备状态流转：Compacting → Compact Success | Compact Failed: <msg>
// 失败时保留原 data_count
type CompactService interface {
	Compact(ctx context.Context, id uint64) (*dto.CompactResult, error)
	CompactAll(ctx context.Context) (*dto.BatchCompactResult, error)
}

type compactService struct {
	repo     *repository.Repository
	portal   PortalClient
	locker   RunLocker
	interval time.Duration
	logger   *zap.Logger
}

// NewCompactService 创建 CompactService 实例
func NewCompactService(
	repo *repository.Repository,
	portal PortalClient,
	locker RunLocker,
	interval time.Duration,
	logger *zap.Logger,
) CompactService {
	return &compactService{
		repo:     repo,
		portal:   portal,
		locker:   locker,
		interval: interval,
		logger:   logger,
	}
}

func (s *compactService) Compact(ctx context.Context, id uint64) (*dto.CompactResult, error) {
	device, err := s.repo.Device.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		s.logger.Error("查询设备失败", zap.Uint64("device_id", id), zap.Error(err))
		return nil, err
	}
	return s.compactDevice(ctx, device), nil
}

func (s *compactService) CompactAll(ctx context.Context) (*dto.BatchCompactResult, error) {
	devices, err := s.repo.Device.ListForBatch(ctx)
	if err != nil {
		s.logger.Error("列出设备失败", zap.Error(err))
		return nil, err
	}

	result := &dto.BatchCompactResult{}
	processed := 0
	for i := range devices {
		if i > 0 {
			if err := pace(ctx, s.interval); err != nil {
				break
			}
		} else if ctx.Err() != nil {
			break
		}

		res := s.compactDevice(ctx, &devices[i])
		processed++
		if res.Success {
			result.SuccessCount++
			result.TotalDataCount += res.DataCount
		} else {
			result.ErrorCount++
		}
	}

	result.Success = result.ErrorCount == 0
	result.Message = fmt.Sprintf("Processed %d entries. Success: %d, Errors: %d",
		processed, result.SuccessCount, result.ErrorCount)

	s.logger.Info("批量压缩完成",
		zap.Int("devices", len(devices)),
		zap.Int("processed", processed),
		zap.Int("success", result.SuccessCount),
		zap.Int("errors", result.ErrorCount),
		zap.Int64("remaining", result.TotalDataCount),
	)

	if processed < len(devices) {
		return result, ctx.Err()
	}
	return result, nil
}

// ── 内部辅助方法 ──

func (s *compactService) compactDevice(ctx context.Context, device *model.DeviceEntry) *dto.CompactResult {
	log := s.logger.With(zap.Uint64("device_id", device.ID), zap.String("sn", device.SN))

	release, err := acquireRun(ctx, s.locker, device.ID, log)
	if err != nil {
		log.Info("设备正在运行，跳过压缩")
		return &dto.CompactResult{Success: false, Message: pkgerrors.ErrDeviceBusy.Error()}
	}
	defer release()

	if err := s.repo.Device.UpdateStatus(ctx, device.ID, model.Compacting()); err != nil {
		return s.fail(ctx, device, err, log)
	}

	remaining, err := s.run(ctx, device)
	if err != nil {
		return s.fail(ctx, device, err, log)
	}

	if err := s.repo.Device.UpdateCompactResult(ctx, device.ID, model.CompactSucceeded(), remaining); err != nil {
		return s.fail(ctx, device, fmt.Errorf("update device: %w", err), log)
	}

	log.Info("设备压缩完成", zap.Int64("remaining", remaining))
	return &dto.CompactResult{
		Success:   true,
		Message:   "Compact operation completed successfully",
		DataCount: remaining,
	}
}

// run 登录 → 清除 → 重新拉取导出页核对剩余条数
func (s *compactService) run(ctx context.Context, device *model.DeviceEntry) (int64, error) {
	login, err := s.portal.Login(ctx, device.SN, device.Password)
	if err != nil {
		return 0, err
	}
	if err := s.portal.Purge(ctx, login.Session); err != nil {
		return 0, err
	}
	body, err := s.portal.FetchExport(ctx, login.Session)
	if err != nil {
		return 0, err
	}
	return s.remaining(body), nil
}

// remaining 门户跳回首页标记表示无数据；否则按非空行计数
func (s *compactService) remaining(body string) int64 {
	if s.portal.IsEmptyMarker(body) {
		return 0
	}
	var n int64
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

func (s *compactService) fail(ctx context.Context, device *model.DeviceEntry, cause error, log *zap.Logger) *dto.CompactResult {
	log.Warn("设备压缩失败", zap.Error(cause))
	if err := s.repo.Device.UpdateStatus(context.WithoutCancel(ctx), device.ID, model.CompactFailed(cause.Error())); err != nil {
		log.Error("写入压缩失败状态失败", zap.Error(err))
	}
	return &dto.CompactResult{Success: false, Message: cause.Error()}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"sn-sync/backend/internal/dto"
	"sn-sync/backend/internal/model"
	"sn-sync/backend/internal/parser"
	"sn-sync/backend/internal/repository"
	pkgerrors "sn-sync/backend/pkg/errors"
)

// ── 采集模块业务错误 ──

var ErrDeviceNotFound = errors.New("SN entry not found")

// CollectService 设备采集业务接口
//
// 单台设备状态流转：Processing → Connected (+N) | Error: <msg>
//   - 登录失败：不写入任何记录
//   - 登录成功之后的失败：已写入的记录保留，下次从水位线继续
//   - 水位线 = 该设备最新记录时间 + 1s，无记录时取登记的 start_date
type CollectService interface {
	// Collect 采集单台设备，设备不存在返回 ErrDeviceNotFound；其余失败体现在结果中
	Collect(ctx context.Context, id uint64) (*dto.CollectResult, error)
	// CollectAll 按登记顺序逐台采集，单台失败不影响其他设备
	CollectAll(ctx context.Context) (*dto.BatchCollectResult, error)
}

type collectService struct {
	repo     *repository.Repository
	portal   PortalClient
	locker   RunLocker
	loc      *time.Location
	interval time.Duration
	logger   *zap.Logger
}

// NewCollectService 创建 CollectService 实例
func NewCollectService(
	repo *repository.Repository,
	portal PortalClient,
	locker RunLocker,
	loc *time.Location,
	interval time.Duration,
	logger *zap.Logger,
) CollectService {
	return &collectService{
		repo:     repo,
		portal:   portal,
		locker:   locker,
		loc:      loc,
		interval: interval,
		logger:   logger,
	}
}

// ────────────────────── Collect ──────────────────────

func (s *collectService) Collect(ctx context.Context, id uint64) (*dto.CollectResult, error) {
	device, err := s.repo.Device.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		s.logger.Error("查询设备失败", zap.Uint64("device_id", id), zap.Error(err))
		return nil, err
	}
	return s.collectDevice(ctx, device), nil
}

// ────────────────────── CollectAll ──────────────────────

func (s *collectService) CollectAll(ctx context.Context) (*dto.BatchCollectResult, error) {
	devices, err := s.repo.Device.ListForBatch(ctx)
	if err != nil {
		s.logger.Error("列出设备失败", zap.Error(err))
		return nil, err
	}

	result := &dto.BatchCollectResult{}
	processed := 0
	for i := range devices {
		if i > 0 {
			if err := pace(ctx, s.interval); err != nil {
				break
			}
		} else if ctx.Err() != nil {
			break
		}

		res := s.collectDevice(ctx, &devices[i])
		processed++
		if res.Success {
			result.SuccessCount++
			result.TotalNewRecords += res.NewRecords
		} else {
			result.ErrorCount++
		}
	}

	result.Success = result.ErrorCount == 0
	result.Message = fmt.Sprintf("Processed %d entries. Success: %d, Errors: %d",
		processed, result.SuccessCount, result.ErrorCount)

	s.logger.Info("批量采集完成",
		zap.Int("devices", len(devices)),
		zap.Int("processed", processed),
		zap.Int("success", result.SuccessCount),
		zap.Int("errors", result.ErrorCount),
		zap.Int("new_records", result.TotalNewRecords),
	)

	if processed < len(devices) {
		return result, ctx.Err()
	}
	return result, nil
}

// ── 内部辅助方法 ──

// collectDevice 单台设备完整采集流程，所有失败都收敛为结果与状态
func (s *collectService) collectDevice(ctx context.Context, device *model.DeviceEntry) *dto.CollectResult {
	log := s.logger.With(zap.Uint64("device_id", device.ID), zap.String("sn", device.SN))

	release, err := acquireRun(ctx, s.locker, device.ID, log)
	if err != nil {
		log.Info("设备正在运行，跳过采集")
		return &dto.CollectResult{Success: false, Message: pkgerrors.ErrDeviceBusy.Error()}
	}
	defer release()

	if err := s.repo.Device.UpdateStatus(ctx, device.ID, model.Processing()); err != nil {
		log.Error("写入设备状态失败", zap.Error(err))
		return s.fail(ctx, device, err, log)
	}

	newRecords, skipped, err := s.run(ctx, device, log)
	if err != nil {
		res := s.fail(ctx, device, err, log)
		res.NewRecords = newRecords
		res.Skipped = skipped
		return res
	}

	log.Info("设备采集完成", zap.Int("new_records", newRecords), zap.Int("skipped", skipped))
	return &dto.CollectResult{
		Success:    true,
		Message:    fmt.Sprintf("Successfully collected %d new records", newRecords),
		NewRecords: newRecords,
		Skipped:    skipped,
	}
}

// run 水位线 → 登录 → 拉取 → 解析 → 入库 → 回写计数
// 返回本次新增条数，即使中途出错也返回已入库部分
func (s *collectService) run(ctx context.Context, device *model.DeviceEntry, log *zap.Logger) (int, int, error) {
	// 1. 水位线
	start, err := s.watermark(ctx, device)
	if err != nil {
		return 0, 0, fmt.Errorf("resolve watermark: %w", err)
	}
	window := parser.Window{Start: start, End: device.EndDate}

	// 2. 登录
	login, err := s.portal.Login(ctx, device.SN, device.Password)
	if err != nil {
		return 0, 0, err
	}

	// 3. 拉取导出页
	body, err := s.portal.FetchExport(ctx, login.Session)
	if err != nil {
		return 0, 0, err
	}

	// 4. 解析并幂等入库
	skipped := 0
	p := parser.New(s.loc, parser.WithSkipHandler(func(sk parser.Skip) {
		skipped++
		log.Warn("跳过无法解析的打卡行", zap.Int("line", sk.Line), zap.String("raw", sk.Raw), zap.Error(sk.Err))
	}))

	newRecords := 0
	for rec := range p.Parse(device.SN, body, window) {
		inserted, err := s.repo.PunchRecord.Upsert(ctx, &rec)
		if err != nil {
			log.Error("写入打卡记录失败", zap.Error(err))
			return newRecords, skipped, fmt.Errorf("store record: %w", err)
		}
		if inserted {
			newRecords++
		}
	}

	// 5. 全量计数回写
	count, err := s.repo.PunchRecord.CountBySN(ctx, device.SN)
	if err != nil {
		return newRecords, skipped, fmt.Errorf("count records: %w", err)
	}
	if err := s.repo.Device.UpdateCollectResult(ctx, device.ID, model.Connected(newRecords), count); err != nil {
		return newRecords, skipped, fmt.Errorf("update device: %w", err)
	}
	return newRecords, skipped, nil
}

// watermark 最新记录 + 1s；不早于登记的 start_date
func (s *collectService) watermark(ctx context.Context, device *model.DeviceEntry) (time.Time, error) {
	latest, found, err := s.repo.PunchRecord.LatestTimestamp(ctx, device.SN)
	if err != nil {
		return time.Time{}, err
	}
	if !found {
		return device.StartDate, nil
	}
	next := latest.Add(time.Second)
	if next.Before(device.StartDate) {
		return device.StartDate, nil
	}
	return next, nil
}

func (s *collectService) fail(ctx context.Context, device *model.DeviceEntry, cause error, log *zap.Logger) *dto.CollectResult {
	log.Warn("设备采集失败", zap.Error(cause))
	// 请求被取消时仍需落下错误状态
	if err := s.repo.Device.UpdateStatus(context.WithoutCancel(ctx), device.ID, model.Errored(cause.Error())); err != nil {
		log.Error("写入错误状态失败", zap.Error(err))
	}
	return &dto.CollectResult{Success: false, Message: cause.Error()}
}

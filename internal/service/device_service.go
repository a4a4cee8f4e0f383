package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"sn-sync/backend/internal/dto"
	"sn-sync/backend/internal/model"
	"sn-sync/backend/internal/repository"
)

// ── 设备登记模块业务错误 ──

var (
	ErrDeviceSNExists      = errors.New("SN already exists")
	ErrNoFieldsToUpdate    = errors.New("No fields to update")
	ErrDeviceDateInvalid   = errors.New("invalid date, expected YYYY-MM-DD or RFC3339")
	ErrDeviceWindowInvalid = errors.New("start_date must not be after end_date")
)

// DeviceService 设备登记业务接口
type DeviceService interface {
	Create(ctx context.Context, req *dto.CreateDeviceRequest) (*dto.DeviceResponse, error)
	List(ctx context.Context) ([]dto.DeviceResponse, error)
	Update(ctx context.Context, id uint64, req *dto.UpdateDeviceRequest) (*dto.DeviceResponse, error)
	// Delete 在同一事务内删除设备及其全部打卡记录
	Delete(ctx context.Context, id uint64) error
}

type deviceService struct {
	repo   *repository.Repository
	loc    *time.Location
	logger *zap.Logger
}

// NewDeviceService 创建 DeviceService 实例
func NewDeviceService(repo *repository.Repository, loc *time.Location, logger *zap.Logger) DeviceService {
	return &deviceService{repo: repo, loc: loc, logger: logger}
}

// ────────────────────── Create ──────────────────────

func (s *deviceService) Create(ctx context.Context, req *dto.CreateDeviceRequest) (*dto.DeviceResponse, error) {
	sn := strings.TrimSpace(req.SN)
	start, err := parseDeviceDate(req.StartDate, s.loc, false)
	if err != nil {
		return nil, err
	}
	end, err := parseDeviceDate(req.EndDate, s.loc, true)
	if err != nil {
		return nil, err
	}
	if start.After(end) {
		return nil, ErrDeviceWindowInvalid
	}

	if _, err := s.repo.Device.GetBySN(ctx, sn); err == nil {
		return nil, ErrDeviceSNExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询设备失败", zap.String("sn", sn), zap.Error(err))
		return nil, err
	}

	device := &model.DeviceEntry{
		SN:        sn,
		Password:  req.Password,
		StartDate: start,
		EndDate:   end,
		Status:    model.Idle().String(),
	}
	if err := s.repo.Device.Create(ctx, device); err != nil {
		// 并发登记同一 SN 时由唯一索引兜底
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDeviceSNExists
		}
		s.logger.Error("登记设备失败", zap.String("sn", sn), zap.Error(err))
		return nil, err
	}

	s.logger.Info("设备已登记", zap.Uint64("device_id", device.ID), zap.String("sn", sn))
	return toDeviceResponse(device), nil
}

// ────────────────────── List ──────────────────────

func (s *deviceService) List(ctx context.Context) ([]dto.DeviceResponse, error) {
	devices, err := s.repo.Device.List(ctx)
	if err != nil {
		s.logger.Error("列出设备失败", zap.Error(err))
		return nil, err
	}

	result := make([]dto.DeviceResponse, 0, len(devices))
	for i := range devices {
		result = append(result, *toDeviceResponse(&devices[i]))
	}
	return result, nil
}

// ────────────────────── Update ──────────────────────

func (s *deviceService) Update(ctx context.Context, id uint64, req *dto.UpdateDeviceRequest) (*dto.DeviceResponse, error) {
	if req.Empty() {
		return nil, ErrNoFieldsToUpdate
	}

	device, err := s.repo.Device.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		s.logger.Error("查询设备失败", zap.Uint64("device_id", id), zap.Error(err))
		return nil, err
	}

	oldSN := device.SN
	updates := map[string]interface{}{}

	if req.SN != nil {
		sn := strings.TrimSpace(*req.SN)
		if sn == "" {
			return nil, ErrNoFieldsToUpdate
		}
		if sn != oldSN {
			if _, err := s.repo.Device.GetBySN(ctx, sn); err == nil {
				return nil, ErrDeviceSNExists
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
			updates["sn"] = sn
			device.SN = sn
		}
	}
	if req.Password != nil {
		updates["password"] = *req.Password
		device.Password = *req.Password
	}
	if req.StartDate != nil {
		start, err := parseDeviceDate(*req.StartDate, s.loc, false)
		if err != nil {
			return nil, err
		}
		updates["start_date"] = start
		device.StartDate = start
	}
	if req.EndDate != nil {
		end, err := parseDeviceDate(*req.EndDate, s.loc, true)
		if err != nil {
			return nil, err
		}
		updates["end_date"] = end
		device.EndDate = end
	}
	if device.StartDate.After(device.EndDate) {
		return nil, ErrDeviceWindowInvalid
	}
	if len(updates) == 0 {
		// 只提交了与当前值相同的 SN
		return toDeviceResponse(device), nil
	}

	// 改号时连同打卡记录一起迁移，保证记录始终归属于登记中的 SN
	err = s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		if device.SN != oldSN {
			if err := txRepo.PunchRecord.RenameSN(ctx, oldSN, device.SN); err != nil {
				return err
			}
		}
		return txRepo.Device.Update(ctx, id, updates)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDeviceSNExists
		}
		s.logger.Error("更新设备失败", zap.Uint64("device_id", id), zap.Error(err))
		return nil, err
	}

	updated, err := s.repo.Device.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toDeviceResponse(updated), nil
}

// ────────────────────── Delete ──────────────────────

func (s *deviceService) Delete(ctx context.Context, id uint64) error {
	device, err := s.repo.Device.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDeviceNotFound
		}
		s.logger.Error("查询设备失败", zap.Uint64("device_id", id), zap.Error(err))
		return err
	}

	var removed int64
	err = s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		n, err := txRepo.PunchRecord.DeleteBySN(ctx, device.SN)
		if err != nil {
			return err
		}
		removed = n
		return txRepo.Device.Delete(ctx, id)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDeviceNotFound
		}
		s.logger.Error("删除设备失败", zap.Uint64("device_id", id), zap.Error(err))
		return err
	}

	s.logger.Info("设备已删除",
		zap.Uint64("device_id", id),
		zap.String("sn", device.SN),
		zap.Int64("records", removed),
	)
	return nil
}

// ── 辅助函数 ──

// parseDeviceDate 仅日期时按 endOfDay 取当天起点或终点（秒级）
func parseDeviceDate(raw string, loc *time.Location, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	d, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, ErrDeviceDateInvalid
	}
	if endOfDay {
		return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, loc), nil
	}
	return d, nil
}

func toDeviceResponse(d *model.DeviceEntry) *dto.DeviceResponse {
	return &dto.DeviceResponse{
		ID:         d.ID,
		SN:         d.SN,
		StartDate:  d.StartDate.Format(time.RFC3339),
		EndDate:    d.EndDate.Format(time.RFC3339),
		Status:     d.Status,
		DataCount:  d.DataCount,
		SheetCount: d.SheetCount,
		CreatedAt:  d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  d.UpdatedAt.Format(time.RFC3339),
	}
}

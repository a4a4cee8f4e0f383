package repository

import (
	"context"

	"gorm.io/gorm"

	"sn-sync/backend/internal/model"
)

// DeviceRepository 设备登记数据访问接口
type DeviceRepository interface {
	Create(ctx context.Context, device *model.DeviceEntry) error
	GetByID(ctx context.Context, id uint64) (*model.DeviceEntry, error)
	GetBySN(ctx context.Context, sn string) (*model.DeviceEntry, error)
	List(ctx context.Context) ([]model.DeviceEntry, error)
	ListForBatch(ctx context.Context) ([]model.DeviceEntry, error)
	Update(ctx context.Context, id uint64, updates map[string]interface{}) error
	UpdateStatus(ctx context.Context, id uint64, status model.DeviceStatus) error
	UpdateCollectResult(ctx context.Context, id uint64, status model.DeviceStatus, count int64) error
	UpdateCompactResult(ctx context.Context, id uint64, status model.DeviceStatus, dataCount int64) error
	Delete(ctx context.Context, id uint64) error
}

// deviceRepo DeviceRepository 的 GORM 实现
type deviceRepo struct {
	db *gorm.DB
}

// NewDeviceRepo 创建 DeviceRepository 实例
func NewDeviceRepo(db *gorm.DB) DeviceRepository {
	return &deviceRepo{db: db}
}

func (r *deviceRepo) Create(ctx context.Context, device *model.DeviceEntry) error {
	return r.db.WithContext(ctx).Create(device).Error
}

func (r *deviceRepo) GetByID(ctx context.Context, id uint64) (*model.DeviceEntry, error) {
	var device model.DeviceEntry
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&device).Error
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (r *deviceRepo) GetBySN(ctx context.Context, sn string) (*model.DeviceEntry, error) {
	var device model.DeviceEntry
	err := r.db.WithContext(ctx).
		Where("sn = ?", sn).
		First(&device).Error
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// List 管理列表：最新登记在前
func (r *deviceRepo) List(ctx context.Context) ([]model.DeviceEntry, error) {
	var devices []model.DeviceEntry
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Find(&devices).Error
	return devices, err
}

// ListForBatch 批处理顺序：按登记顺序（主键升序），保证每次遍历顺序稳定
func (r *deviceRepo) ListForBatch(ctx context.Context) ([]model.DeviceEntry, error) {
	var devices []model.DeviceEntry
	err := r.db.WithContext(ctx).
		Order("id ASC").
		Find(&devices).Error
	return devices, err
}

// Update 部分更新，目标不存在时返回 gorm.ErrRecordNotFound
func (r *deviceRepo) Update(ctx context.Context, id uint64, updates map[string]interface{}) error {
	return r.updates(ctx, id, updates)
}

func (r *deviceRepo) UpdateStatus(ctx context.Context, id uint64, status model.DeviceStatus) error {
	return r.updates(ctx, id, map[string]interface{}{
		"status": status.String(),
	})
}

// UpdateCollectResult 采集完成：data_count 与 sheet_count 均写入本地全量行数
func (r *deviceRepo) UpdateCollectResult(ctx context.Context, id uint64, status model.DeviceStatus, count int64) error {
	return r.updates(ctx, id, map[string]interface{}{
		"status":      status.String(),
		"data_count":  count,
		"sheet_count": count,
	})
}

// UpdateCompactResult 压缩完成：data_count 写入远端剩余行数
func (r *deviceRepo) UpdateCompactResult(ctx context.Context, id uint64, status model.DeviceStatus, dataCount int64) error {
	return r.updates(ctx, id, map[string]interface{}{
		"status":     status.String(),
		"data_count": dataCount,
	})
}

func (r *deviceRepo) Delete(ctx context.Context, id uint64) error {
	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&model.DeviceEntry{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *deviceRepo) updates(ctx context.Context, id uint64, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&model.DeviceEntry{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sn-sync/backend/internal/model"
)

// PunchRecordFilter 打卡记录查询条件，零值字段不参与过滤
type PunchRecordFilter struct {
	SN         string
	EmployeeID string
	From       *time.Time
	To         *time.Time
}

// PunchRecordRepository 打卡记录数据访问接口
type PunchRecordRepository interface {
	// Upsert 按 (sn, employee_id, timestamp) 幂等写入，已存在时为空操作，inserted=false
	Upsert(ctx context.Context, rec *model.PunchRecord) (inserted bool, err error)
	// LatestTimestamp 设备最新一条记录的时间，无记录时 found=false
	LatestTimestamp(ctx context.Context, sn string) (ts time.Time, found bool, err error)
	CountBySN(ctx context.Context, sn string) (int64, error)
	DeleteBySN(ctx context.Context, sn string) (int64, error)
	RenameSN(ctx context.Context, oldSN, newSN string) error
	List(ctx context.Context, filter PunchRecordFilter, offset, limit int) ([]model.PunchRecord, int64, error)
	ListAll(ctx context.Context, filter PunchRecordFilter) ([]model.PunchRecord, error)
}

// punchRecordRepo PunchRecordRepository 的 GORM 实现
type punchRecordRepo struct {
	db *gorm.DB
}

// NewPunchRecordRepo 创建 PunchRecordRepository 实例
func NewPunchRecordRepo(db *gorm.DB) PunchRecordRepository {
	return &punchRecordRepo{db: db}
}

var naturalKey = []clause.Column{{Name: "sn"}, {Name: "employee_id"}, {Name: "timestamp"}}

var timestampDesc = clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}

func (r *punchRecordRepo) Upsert(ctx context.Context, rec *model.PunchRecord) (bool, error) {
	// 统一以 UTC 落库，自然键比较不受时区表示影响
	rec.Timestamp = rec.Timestamp.UTC()

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: naturalKey, DoNothing: true}).
		Create(rec)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *punchRecordRepo) LatestTimestamp(ctx context.Context, sn string) (time.Time, bool, error) {
	var rec model.PunchRecord
	err := r.db.WithContext(ctx).
		Select("timestamp").
		Where("sn = ?", sn).
		Order(timestampDesc).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return rec.Timestamp, true, nil
}

func (r *punchRecordRepo) CountBySN(ctx context.Context, sn string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.PunchRecord{}).
		Where("sn = ?", sn).
		Count(&count).Error
	return count, err
}

func (r *punchRecordRepo) DeleteBySN(ctx context.Context, sn string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("sn = ?", sn).
		Delete(&model.PunchRecord{})
	return result.RowsAffected, result.Error
}

// RenameSN 设备改号时迁移其名下记录
func (r *punchRecordRepo) RenameSN(ctx context.Context, oldSN, newSN string) error {
	return r.db.WithContext(ctx).
		Model(&model.PunchRecord{}).
		Where("sn = ?", oldSN).
		Update("sn", newSN).Error
}

func (r *punchRecordRepo) List(ctx context.Context, filter PunchRecordFilter, offset, limit int) ([]model.PunchRecord, int64, error) {
	var records []model.PunchRecord
	var total int64

	if err := r.filtered(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.filtered(ctx, filter).
		Order(timestampDesc).
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&records).Error
	return records, total, err
}

// ListAll 导出用，不分页
func (r *punchRecordRepo) ListAll(ctx context.Context, filter PunchRecordFilter) ([]model.PunchRecord, error) {
	var records []model.PunchRecord
	err := r.filtered(ctx, filter).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "sn"}}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}}).
		Find(&records).Error
	return records, err
}

func (r *punchRecordRepo) filtered(ctx context.Context, filter PunchRecordFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&model.PunchRecord{})
	if filter.SN != "" {
		query = query.Where("sn = ?", filter.SN)
	}
	if filter.EmployeeID != "" {
		query = query.Where("employee_id = ?", filter.EmployeeID)
	}
	if filter.From != nil {
		query = query.Where("timestamp >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("timestamp <= ?", filter.To.UTC())
	}
	return query
}

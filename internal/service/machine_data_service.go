package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"sn-sync/backend/internal/dto"
	"sn-sync/backend/internal/model"
	"sn-sync/backend/internal/repository"
)

const (
	defaultMachineDataPageSize = 100
	maxMachineDataPageSize     = 500
)

// RoleUser 普通员工角色，只能查看自己的打卡记录
const RoleUser = "user"

// ErrEmployeeIDMissing 员工账号未绑定员工编号
var ErrEmployeeIDMissing = errors.New("employee id not bound to account")

// Caller 调用方身份（由 JWT 中间件注入）
type Caller struct {
	UserID     string
	Role       string
	EmployeeID string
}

// MachineDataService 打卡记录查询业务接口
type MachineDataService interface {
	List(ctx context.Context, query *dto.MachineDataQuery, caller Caller) ([]dto.MachineDataResponse, int64, error)
}

type machineDataService struct {
	repo   *repository.Repository
	loc    *time.Location
	logger *zap.Logger
}

// NewMachineDataService 创建 MachineDataService 实例
func NewMachineDataService(repo *repository.Repository, loc *time.Location, logger *zap.Logger) MachineDataService {
	return &machineDataService{repo: repo, loc: loc, logger: logger}
}

// List 按时间倒序分页；普通员工强制只看本人记录
func (s *machineDataService) List(ctx context.Context, query *dto.MachineDataQuery, caller Caller) ([]dto.MachineDataResponse, int64, error) {
	filter, err := scopeFilter(repository.PunchRecordFilter{SN: query.SN, EmployeeID: query.EmployeeID}, caller)
	if err != nil {
		return nil, 0, err
	}

	page, pageSize := NormalizePage(query.Page, query.PageSize)
	records, total, err := s.repo.PunchRecord.List(ctx, filter, (page-1)*pageSize, pageSize)
	if err != nil {
		s.logger.Error("查询打卡记录失败", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.MachineDataResponse, 0, len(records))
	for i := range records {
		result = append(result, s.toResponse(&records[i]))
	}
	return result, total, nil
}

// NormalizePage 补齐分页默认值并截断上限，Handler 层回显分页时复用
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultMachineDataPageSize
	}
	if pageSize > maxMachineDataPageSize {
		pageSize = maxMachineDataPageSize
	}
	return page, pageSize
}

func scopeFilter(filter repository.PunchRecordFilter, caller Caller) (repository.PunchRecordFilter, error) {
	if caller.Role == RoleUser {
		if caller.EmployeeID == "" {
			return filter, ErrEmployeeIDMissing
		}
		filter.EmployeeID = caller.EmployeeID
	}
	return filter, nil
}

func (s *machineDataService) toResponse(r *model.PunchRecord) dto.MachineDataResponse {
	return dto.MachineDataResponse{
		ID:           r.ID,
		SN:           r.SN,
		EmployeeID:   r.EmployeeID,
		Timestamp:    r.Timestamp.In(s.loc).Format(time.RFC3339),
		WorkCode:     r.WorkCode,
		Verification: r.Verification,
		State:        r.State,
		CreatedAt:    r.CreatedAt.In(s.loc).Format(time.RFC3339),
	}
}

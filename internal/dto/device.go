package dto

// ── 设备登记模块 DTO ──

// CreateDeviceRequest 登记设备请求
// 日期接受 "2006-01-02" 或 RFC3339；仅日期时 start 取当天 00:00:00、end 取当天 23:59:59（设备时区）
type CreateDeviceRequest struct {
	SN        string `json:"sn"         binding:"required,max=64"`
	Password  string `json:"password"   binding:"required,max=128"`
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date"   binding:"required"`
}

// UpdateDeviceRequest 更新设备请求，至少提供一个字段
type UpdateDeviceRequest struct {
	SN        *string `json:"sn"       binding:"omitempty,min=1,max=64"`
	Password  *string `json:"password" binding:"omitempty,min=1,max=128"`
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
}

// Empty 是否未提供任何字段
func (r *UpdateDeviceRequest) Empty() bool {
	return r.SN == nil && r.Password == nil && r.StartDate == nil && r.EndDate == nil
}

// DeviceResponse 设备信息响应（不含门户密码）
type DeviceResponse struct {
	ID         uint64 `json:"id"`
	SN         string `json:"sn"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Status     string `json:"status"`
	DataCount  int64  `json:"data_count"`
	SheetCount int64  `json:"sheet_count"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// ── 采集 / 压缩结果 ──

// CollectResult 单台设备采集结果
type CollectResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	NewRecords int    `json:"new_records"`
	Skipped    int    `json:"skipped"` // 时间戳无法解析而跳过的行数
}

// CompactResult 单台设备压缩结果
type CompactResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	DataCount int64  `json:"data_count"`
}

// BatchCollectResult 批量采集汇总
type BatchCollectResult struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	SuccessCount    int    `json:"success_count"`
	ErrorCount      int    `json:"error_count"`
	TotalNewRecords int    `json:"total_new_records"`
}

// BatchCompactResult 批量压缩汇总
type BatchCompactResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	SuccessCount   int    `json:"success_count"`
	ErrorCount     int    `json:"error_count"`
	TotalDataCount int64  `json:"total_data_count"`
}

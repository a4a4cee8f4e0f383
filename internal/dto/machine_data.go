package dto

// ── 打卡记录模块 DTO ──

// MachineDataQuery 打卡记录分页查询
type MachineDataQuery struct {
	SN         string `form:"sn"`
	EmployeeID string `form:"employee_id"`
	Page       int    `form:"page"      binding:"omitempty,min=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=500"`
}

// MachineDataExportQuery 打卡记录导出条件
type MachineDataExportQuery struct {
	SN         string `form:"sn"`
	EmployeeID string `form:"employee_id"`
	From       string `form:"from"` // "2006-01-02" 或 RFC3339
	To         string `form:"to"`
}

// MachineDataResponse 打卡记录响应
type MachineDataResponse struct {
	ID           uint64  `json:"id"`
	SN           string  `json:"sn"`
	EmployeeID   string  `json:"employee_id"`
	Timestamp    string  `json:"timestamp"`
	WorkCode     *string `json:"work_code"`
	Verification *string `json:"verification"`
	State        *string `json:"state"`
	CreatedAt    string  `json:"created_at"`
}

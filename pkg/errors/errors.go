package errors

import "errors"

// ErrDeviceBusy 设备运行锁被占用：同一设备已有采集/压缩在执行
var ErrDeviceBusy = errors.New("device is busy")

package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"sn-sync/backend/internal/portal"
	"sn-sync/backend/internal/repository"
)

type compactFixture struct {
	svc     CompactService
	devices *mockDeviceRepo
	portal  *mockPortal
	locker  *mockLocker
}

func setupTestCompactService() *compactFixture {
	devices := newMockDeviceRepo()
	p := newMockPortal()
	locker := newMockLocker()
	repo := &repository.Repository{Device: devices, PunchRecord: newMockPunchRepo()}
	return &compactFixture{
		svc:     NewCompactService(repo, p, locker, 0, zap.NewNop()),
		devices: devices,
		portal:  p,
		locker:  locker,
	}
}

func TestCompactService_Compact_Success(t *testing.T) {
	f := setupTestCompactService()
	d := f.devices.add("SN001", window2024Start, window2024End)
	// 清除后门户仍返回 2 行
	f.portal.bodies["SN001"] = "1\t26/05/2024 08:00:00\n\n2\t26/05/2024 09:00:00\n"

	res, err := f.svc.Compact(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("Compact 不应返回错误: %v", err)
	}
	if !res.Success || res.Message != "Compact operation completed successfully" {
		t.Fatalf("结果不符: %+v", res)
	}
	if res.DataCount != 2 {
		t.Errorf("期望剩余 2 行，实际=%d", res.DataCount)
	}
	got := f.devices.get(d.ID)
	if got.Status != "Compact Success" || got.DataCount != 2 {
		t.Errorf("状态/计数不符: %s / %d", got.Status, got.DataCount)
	}
	if h := f.devices.history(d.ID); !equalStatuses(h, []string{"Compacting", "Compact Success"}) {
		t.Errorf("状态流转不符: %v", h)
	}
	if len(f.portal.purged) != 1 || f.portal.purged[0] != "SN001" {
		t.Errorf("应对 SN001 发起清除，实际=%v", f.portal.purged)
	}
}

func TestCompactService_Compact_EmptyMarker(t *testing.T) {
	f := setupTestCompactService()
	d := f.devices.add("SN001", window2024Start, window2024End)
	f.devices.devices[d.ID].DataCount = 42
	f.portal.bodies["SN001"] = "<script>" + mockEmptyMarker + "</script>"

	res, _ := f.svc.Compact(context.Background(), d.ID)
	if !res.Success || res.DataCount != 0 {
		t.Fatalf("门户跳回首页时剩余应为 0，实际=%+v", res)
	}
	if got := f.devices.get(d.ID); got.DataCount != 0 {
		t.Errorf("data_count 应重置为 0，实际=%d", got.DataCount)
	}
}

func TestCompactService_Compact_PurgeFailureKeepsCount(t *testing.T) {
	f := setupTestCompactService()
	d := f.devices.add("SN001", window2024Start, window2024End)
	f.devices.devices[d.ID].DataCount = 42
	f.portal.purgeErr["SN001"] = &portal.Error{
		Kind: portal.KindPurge, Op: "GET /view.asp?hapus=1", StatusCode: 500, Err: portal.ErrPurgeRejected,
	}

	res, err := f.svc.Compact(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("不应返回错误: %v", err)
	}
	if res.Success {
		t.Fatal("期望失败")
	}
	got := f.devices.get(d.ID)
	if !strings.HasPrefix(got.Status, "Compact Failed: ") {
		t.Errorf("期望 Compact Failed 状态，实际=%s", got.Status)
	}
	if !strings.Contains(got.Status, "HTTP 500") {
		t.Errorf("状态应包含 HTTP 状态码，实际=%s", got.Status)
	}
	if got.DataCount != 42 {
		t.Errorf("失败时 data_count 应保持 42，实际=%d", got.DataCount)
	}
}

func TestCompactService_Compact_LoginFailure(t *testing.T) {
	f := setupTestCompactService()
	d := f.devices.add("SN001", window2024Start, window2024End)
	f.portal.loginErr["SN001"] = loginRejected()

	res, _ := f.svc.Compact(context.Background(), d.ID)
	if res.Success {
		t.Fatal("期望失败")
	}
	if len(f.portal.purged) != 0 {
		t.Error("登录失败时不应发起清除")
	}
	if got := f.devices.get(d.ID); !strings.HasPrefix(got.Status, "Compact Failed: ") {
		t.Errorf("期望 Compact Failed 状态，实际=%s", got.Status)
	}
}

func TestCompactService_Compact_NotFound(t *testing.T) {
	f := setupTestCompactService()

	_, err := f.svc.Compact(context.Background(), 7)
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("期望 ErrDeviceNotFound，实际: %v", err)
	}
}

func TestCompactService_Compact_Busy(t *testing.T) {
	f := setupTestCompactService()
	d := f.devices.add("SN001", window2024Start, window2024End)
	f.locker.busy[d.ID] = true

	res, _ := f.svc.Compact(context.Background(), d.ID)
	if res.Success || res.Message != "device is busy" {
		t.Errorf("期望 device is busy，实际=%+v", res)
	}
	if len(f.portal.loginSeen) != 0 {
		t.Error("锁被占用时不应访问门户")
	}
}

func TestCompactService_CompactAll(t *testing.T) {
	f := setupTestCompactService()
	d1 := f.devices.add("SN001", window2024Start, window2024End)
	d2 := f.devices.add("SN002", window2024Start, window2024End)
	d3 := f.devices.add("SN003", window2024Start, window2024End)
	f.portal.bodies["SN001"] = mockEmptyMarker
	f.portal.bodies["SN003"] = "1\t26/05/2024 08:00:00\n"
	f.portal.purgeErr["SN002"] = &portal.Error{Kind: portal.KindPurge, Op: "purge", Err: portal.ErrPurgeRejected}

	res, err := f.svc.CompactAll(context.Background())
	if err != nil {
		t.Fatalf("CompactAll 不应返回错误: %v", err)
	}
	if res.SuccessCount != 2 || res.ErrorCount != 1 {
		t.Errorf("期望 success=2 error=1，实际 %d/%d", res.SuccessCount, res.ErrorCount)
	}
	if res.TotalDataCount != 1 {
		t.Errorf("期望剩余合计 1，实际=%d", res.TotalDataCount)
	}
	if res.Message != "Processed 3 entries. Success: 2, Errors: 1" {
		t.Errorf("汇总消息不符: %s", res.Message)
	}
	if s := f.devices.get(d1.ID).Status; s != "Compact Success" {
		t.Errorf("设备1 状态不符: %s", s)
	}
	if s := f.devices.get(d2.ID).Status; !strings.HasPrefix(s, "Compact Failed: ") {
		t.Errorf("设备2 状态不符: %s", s)
	}
	if s := f.devices.get(d3.ID).Status; s != "Compact Success" {
		t.Errorf("设备3 状态不符: %s", s)
	}
}

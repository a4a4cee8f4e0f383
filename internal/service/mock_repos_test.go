package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"sn-sync/backend/internal/model"
	"sn-sync/backend/internal/portal"
	"sn-sync/backend/internal/repository"
	pkgerrors "sn-sync/backend/pkg/errors"
)

// ── Mock DeviceRepository ──

type mockDeviceRepo struct {
	mu       sync.Mutex
	devices  map[uint64]*model.DeviceEntry
	nextID   uint64
	statuses map[uint64][]string // 每台设备按顺序写入过的状态
}

func newMockDeviceRepo() *mockDeviceRepo {
	return &mockDeviceRepo{
		devices:  make(map[uint64]*model.DeviceEntry),
		statuses: make(map[uint64][]string),
	}
}

func (m *mockDeviceRepo) add(sn string, start, end time.Time) *model.DeviceEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	d := &model.DeviceEntry{
		ID:        m.nextID,
		SN:        sn,
		Password:  "pass-" + sn,
		StartDate: start,
		EndDate:   end,
		Status:    model.Idle().String(),
	}
	m.devices[d.ID] = d
	return d
}

func (m *mockDeviceRepo) Create(_ context.Context, device *model.DeviceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	device.ID = m.nextID
	m.devices[device.ID] = device
	return nil
}

func (m *mockDeviceRepo) GetByID(_ context.Context, id uint64) (*model.DeviceEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockDeviceRepo) GetBySN(_ context.Context, sn string) (*model.DeviceEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.SN == sn {
			cp := *d
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockDeviceRepo) List(ctx context.Context) ([]model.DeviceEntry, error) {
	return m.ListForBatch(ctx)
}

func (m *mockDeviceRepo) ListForBatch(_ context.Context) ([]model.DeviceEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.DeviceEntry
	for _, d := range m.devices {
		result = append(result, *d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *mockDeviceRepo) Update(_ context.Context, id uint64, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (m *mockDeviceRepo) UpdateStatus(_ context.Context, id uint64, status model.DeviceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	d.Status = status.String()
	m.statuses[id] = append(m.statuses[id], d.Status)
	return nil
}

func (m *mockDeviceRepo) UpdateCollectResult(ctx context.Context, id uint64, status model.DeviceStatus, count int64) error {
	if err := m.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[id].DataCount = count
	m.devices[id].SheetCount = count
	return nil
}

func (m *mockDeviceRepo) UpdateCompactResult(ctx context.Context, id uint64, status model.DeviceStatus, dataCount int64) error {
	if err := m.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[id].DataCount = dataCount
	return nil
}

func (m *mockDeviceRepo) Delete(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.devices, id)
	return nil
}

func (m *mockDeviceRepo) get(id uint64) model.DeviceEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.devices[id]
}

func (m *mockDeviceRepo) history(id uint64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.statuses[id]...)
}

// ── Mock PunchRecordRepository ──

type punchKey struct {
	sn       string
	employee string
	ts       int64
}

type mockPunchRepo struct {
	mu      sync.Mutex
	records map[punchKey]model.PunchRecord
	// failAfter > 0 时，第 failAfter 次之后的 Upsert 返回错误
	failAfter int
	upserts   int
}

func newMockPunchRepo() *mockPunchRepo {
	return &mockPunchRepo{records: make(map[punchKey]model.PunchRecord)}
}

var errMockStore = errors.New("mock store failure")

func (m *mockPunchRepo) Upsert(_ context.Context, rec *model.PunchRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.failAfter > 0 && m.upserts > m.failAfter {
		return false, errMockStore
	}
	k := punchKey{rec.SN, rec.EmployeeID, rec.Timestamp.Unix()}
	if _, ok := m.records[k]; ok {
		return false, nil
	}
	m.records[k] = *rec
	return true, nil
}

func (m *mockPunchRepo) LatestTimestamp(_ context.Context, sn string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest time.Time
	found := false
	for k, r := range m.records {
		if k.sn == sn && (!found || r.Timestamp.After(latest)) {
			latest = r.Timestamp
			found = true
		}
	}
	return latest, found, nil
}

func (m *mockPunchRepo) CountBySN(_ context.Context, sn string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.records {
		if k.sn == sn {
			n++
		}
	}
	return n, nil
}

func (m *mockPunchRepo) DeleteBySN(_ context.Context, sn string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.records {
		if k.sn == sn {
			delete(m.records, k)
			n++
		}
	}
	return n, nil
}

func (m *mockPunchRepo) RenameSN(_ context.Context, oldSN, newSN string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, r := range m.records {
		if k.sn == oldSN {
			delete(m.records, k)
			r.SN = newSN
			k.sn = newSN
			m.records[k] = r
		}
	}
	return nil
}

func (m *mockPunchRepo) List(_ context.Context, filter repository.PunchRecordFilter, offset, limit int) ([]model.PunchRecord, int64, error) {
	all := m.filter(filter)
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.After(all[j].Timestamp) })
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *mockPunchRepo) ListAll(_ context.Context, filter repository.PunchRecordFilter) ([]model.PunchRecord, error) {
	all := m.filter(filter)
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	return all, nil
}

func (m *mockPunchRepo) filter(f repository.PunchRecordFilter) []model.PunchRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PunchRecord
	for _, r := range m.records {
		if f.SN != "" && r.SN != f.SN {
			continue
		}
		if f.EmployeeID != "" && r.EmployeeID != f.EmployeeID {
			continue
		}
		if f.From != nil && r.Timestamp.Before(*f.From) {
			continue
		}
		if f.To != nil && r.Timestamp.After(*f.To) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ── Mock PortalClient ──

const mockEmptyMarker = "window.location='default.asp'"

type mockPortal struct {
	mu        sync.Mutex
	bodies    map[string]string // 按 SN 返回的导出页
	loginErr  map[string]error
	fetchErr  map[string]error
	purgeErr  map[string]error
	purged    []string
	loginSeen []string
}

func newMockPortal() *mockPortal {
	return &mockPortal{
		bodies:   make(map[string]string),
		loginErr: make(map[string]error),
		fetchErr: make(map[string]error),
		purgeErr: make(map[string]error),
	}
}

func (m *mockPortal) Login(_ context.Context, sn, _ string) (*portal.LoginResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loginSeen = append(m.loginSeen, sn)
	if err := m.loginErr[sn]; err != nil {
		return nil, err
	}
	return &portal.LoginResult{Session: &portal.Session{SN: sn}, StatusCode: 200}, nil
}

func (m *mockPortal) FetchExport(_ context.Context, sess *portal.Session) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fetchErr[sess.SN]; err != nil {
		return "", err
	}
	return m.bodies[sess.SN], nil
}

func (m *mockPortal) Purge(_ context.Context, sess *portal.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.purgeErr[sess.SN]; err != nil {
		return err
	}
	m.purged = append(m.purged, sess.SN)
	return nil
}

func (m *mockPortal) IsEmptyMarker(body string) bool {
	return strings.Contains(body, mockEmptyMarker)
}

func loginRejected() error {
	return &portal.Error{Kind: portal.KindLogin, Op: "login", StatusCode: 401, Err: portal.ErrLoginRejected}
}

// ── Mock RunLocker ──

type mockLocker struct {
	mu       sync.Mutex
	busy     map[uint64]bool
	released []uint64
}

func newMockLocker() *mockLocker {
	return &mockLocker{busy: make(map[uint64]bool)}
}

func (m *mockLocker) Acquire(_ context.Context, id uint64) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy[id] {
		return nil, pkgerrors.ErrDeviceBusy
	}
	m.busy[id] = true
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.busy, id)
		m.released = append(m.released, id)
	}, nil
}

package parser

import (
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"sn-sync/backend/internal/model"
)

// ── 打卡导出解析器 ──────────────────────────────────────────
//
// 职责：将门户导出页（换行分行、Tab 分列）解析为 PunchRecord 序列。
//
// 约定：
//   - 列 0 = 员工编号，列 1 = 时间戳，列 2..4 = work_code / verification / state（可缺省）
//   - 不足两列的行静默跳过
//   - 时间戳按优先级尝试：DD/MM/YYYY[ HH:MM:SS] → YYYY-MM-DD HH:MM:SS → 通用格式
//   - 时间戳无法解析的行跳过并通过 SkipHandler 上报，不中断解析
//   - 窗口 [Start, End] 两端闭区间，窗口外记录直接丢弃
// ─────────────────────────────────────────────────────────────

var (
	ErrEmptyTimestamp   = errors.New("empty timestamp")
	ErrInvalidTimestamp = errors.New("unrecognized timestamp format")
)

// isoLayouts 第二优先级：空格替换为 T 之后尝试
var isoLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// genericLayouts 兜底格式
var genericLayouts = []string{
	time.RFC1123,
	time.RFC1123Z,
	time.RFC850,
	time.RFC822,
	time.RFC822Z,
	time.ANSIC,
	time.UnixDate,
	"Jan 2, 2006 15:04:05",
	"Jan 2, 2006",
	"2 Jan 2006 15:04:05",
	"2006/01/02 15:04:05",
	"20060102150405",
	"20060102",
}

// Window 采集时间窗口，零值端点表示该侧不限
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains 闭区间判断
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && t.After(w.End) {
		return false
	}
	return true
}

// Skip 被跳过的行
type Skip struct {
	Line int // 从 1 开始
	Raw  string
	Err  error
}

// SkipHandler 跳过行回调
type SkipHandler func(Skip)

// Parser 导出页解析器，无状态，可并发使用
type Parser struct {
	loc    *time.Location
	onSkip SkipHandler
}

// Option 解析器选项
type Option func(*Parser)

// WithSkipHandler 设置跳过行回调
func WithSkipHandler(fn SkipHandler) Option {
	return func(p *Parser) { p.onSkip = fn }
}

// New 创建解析器，loc 为设备所在时区（门户时间不带时区）
func New(loc *time.Location, opts ...Option) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	p := &Parser{loc: loc}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse 惰性解析导出正文
// 返回的序列可重复遍历，每次遍历都从头重新解析 body，结果一致
func (p *Parser) Parse(sn, body string, window Window) iter.Seq[model.PunchRecord] {
	return func(yield func(model.PunchRecord) bool) {
		for i, raw := range strings.Split(body, "\n") {
			line := i + 1
			row := strings.TrimSpace(raw)
			if row == "" {
				continue
			}
			fields := strings.Split(row, "\t")
			if len(fields) < 2 {
				continue
			}

			ts, err := p.ParseTimestamp(fields[1])
			if err != nil {
				if p.onSkip != nil {
					p.onSkip(Skip{Line: line, Raw: row, Err: err})
				}
				continue
			}
			if !window.Contains(ts) {
				continue
			}

			rec := model.PunchRecord{
				SN:           sn,
				EmployeeID:   strings.TrimSpace(fields[0]),
				Timestamp:    ts,
				WorkCode:     optionalField(fields, 2),
				Verification: optionalField(fields, 3),
				State:        optionalField(fields, 4),
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// ParseTimestamp 按优先级解析门户时间戳
func (p *Parser) ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrEmptyTimestamp
	}

	// 1. 日在前的斜杠格式（印尼地区设备）
	if strings.Contains(s, "/") {
		if t, err := p.parseDayFirst(s); err == nil {
			return t, nil
		}
	}

	// 2. ISO 风格
	if strings.Contains(s, "-") {
		iso := strings.Replace(s, " ", "T", 1)
		for _, layout := range isoLayouts {
			if t, err := time.ParseInLocation(layout, iso, p.loc); err == nil {
				return t, nil
			}
		}
		if t, err := time.Parse(time.RFC3339Nano, iso); err == nil {
			return t, nil
		}
	}

	// 3. 通用格式
	for _, layout := range genericLayouts {
		if t, err := time.ParseInLocation(layout, s, p.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// parseDayFirst 解析 DD/MM/YYYY[ HH[:MM[:SS]]]，缺省的时间分量取 0
func (p *Parser) parseDayFirst(s string) (time.Time, error) {
	datePart, timePart, _ := strings.Cut(s, " ")

	dmy := strings.Split(datePart, "/")
	if len(dmy) != 3 {
		return time.Time{}, ErrInvalidTimestamp
	}
	day, err1 := strconv.Atoi(dmy[0])
	month, err2 := strconv.Atoi(dmy[1])
	year, err3 := strconv.Atoi(dmy[2])
	if err := errors.Join(err1, err2, err3); err != nil {
		return time.Time{}, ErrInvalidTimestamp
	}

	var hms [3]int
	if timePart = strings.TrimSpace(timePart); timePart != "" {
		parts := strings.Split(timePart, ":")
		if len(parts) > 3 {
			return time.Time{}, ErrInvalidTimestamp
		}
		for i, part := range parts {
			v, err := strconv.Atoi(part)
			if err != nil {
				return time.Time{}, ErrInvalidTimestamp
			}
			hms[i] = v
		}
	}

	if month < 1 || month > 12 || day < 1 || hms[0] > 23 || hms[1] > 59 || hms[2] > 59 ||
		hms[0] < 0 || hms[1] < 0 || hms[2] < 0 {
		return time.Time{}, ErrInvalidTimestamp
	}

	t := time.Date(year, time.Month(month), day, hms[0], hms[1], hms[2], 0, p.loc)
	// 31/02 之类会被 time.Date 归一化到下个月，这里视为非法
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, ErrInvalidTimestamp
	}
	return t, nil
}

func optionalField(fields []string, i int) *string {
	if i >= len(fields) {
		return nil
	}
	v := strings.TrimSpace(fields[i])
	if v == "" {
		return nil
	}
	return &v
}

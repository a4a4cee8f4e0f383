package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sn-sync/backend/config"
)

func testConfig(baseURL string) *config.PortalConfig {
	return &config.PortalConfig{
		BaseURL:        baseURL,
		LoginPath:      "/sc_pro.asp",
		ExportPath:     "/view.asp",
		PurgePath:      "/mesin.asp",
		PurgeQuery:     "hapus=1",
		EmptyMarker:    "window.location='default.asp'",
		RequestTimeout: 2 * time.Second,
		UserAgent:      "sn-sync-test",
	}
}

func newTestClient(t *testing.T, cfg *config.PortalConfig) *Client {
	t.Helper()
	c, err := NewClient(cfg, zap.NewNop())
	require.NoError(t, err)
	return c
}

// fakePortal 模拟门户：GET 下发 A=1，POST 校验 Cookie 与表单后下发逗号拼接的 B=2, C=3
func fakePortal(t *testing.T, loginStatus int, exportBody string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/sc_pro.asp", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Set-Cookie", "A=1; path=/")
			w.WriteHeader(http.StatusOK)
		case http.MethodPost:
			assert.Equal(t, "A=1", r.Header.Get("Cookie"))
			assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "SN001", r.PostForm.Get("sn"))
			assert.Equal(t, "secret", r.PostForm.Get("pass"))
			w.Header().Set("Set-Cookie", "B=2; expires=Wed, 21 Oct 2037 07:28:00 GMT; path=/, C=3")
			w.WriteHeader(loginStatus)
		}
	})
	mux.HandleFunc("/view.asp", func(w http.ResponseWriter, r *http.Request) {
		cookies := r.Header.Get("Cookie")
		for _, kv := range []string{"A=1", "B=2", "C=3"} {
			assert.Contains(t, strings.Split(cookies, "; "), kv)
		}
		_, _ = w.Write([]byte(exportBody))
	})
	mux.HandleFunc("/mesin.asp", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("hapus"))
		w.WriteHeader(http.StatusOK)
	})
	return httptest.NewServer(mux)
}

func TestClient_LoginMergesCookies(t *testing.T) {
	server := fakePortal(t, http.StatusOK, "1\t26/05/2024 08:15:00\n")
	defer server.Close()

	c := newTestClient(t, testConfig(server.URL))
	res, err := c.Login(context.Background(), "SN001", "secret")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.False(t, res.CredentialsVerified)
	assert.Equal(t, "A=1; B=2; C=3", res.Session.CookieHeader())

	body, err := c.FetchExport(context.Background(), res.Session)
	require.NoError(t, err)
	assert.Equal(t, "1\t26/05/2024 08:15:00\n", body)
}

func TestClient_LoginFailure(t *testing.T) {
	server := fakePortal(t, http.StatusUnauthorized, "")
	defer server.Close()

	c := newTestClient(t, testConfig(server.URL))
	res, err := c.Login(context.Background(), "SN001", "secret")

	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, IsLoginFailure(err))
	assert.ErrorIs(t, err, ErrLoginRejected)
}

func TestClient_LoginFollowsRedirectAndKeepsCookies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sc_pro.asp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Header().Set("Set-Cookie", "ASPSESSION=abc; path=/")
			http.Redirect(w, r, "/home.asp", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/home.asp", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "ASPSESSION=abc", r.Header.Get("Cookie"))
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(t, testConfig(server.URL))
	res, err := c.Login(context.Background(), "SN001", "secret")
	require.NoError(t, err)
	assert.Equal(t, "ASPSESSION=abc", res.Session.CookieHeader())
}

func TestClient_PurgeFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sc_pro.asp", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/mesin.asp", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "hapus=1", r.URL.RawQuery)
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(t, testConfig(server.URL))
	res, err := c.Login(context.Background(), "SN001", "secret")
	require.NoError(t, err)

	err = c.Purge(context.Background(), res.Session)
	require.Error(t, err)
	assert.True(t, IsPurgeFailure(err))
	assert.Contains(t, err.Error(), "HTTP 500")
}

func TestClient_TimeoutIsTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.RequestTimeout = 50 * time.Millisecond
	c := newTestClient(t, cfg)

	_, err := c.Login(context.Background(), "SN001", "secret")
	require.Error(t, err)
	assert.True(t, IsTransportFailure(err))
	assert.False(t, IsLoginFailure(err))
}

func TestClient_ExportBadStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sc_pro.asp", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/view.asp", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(t, testConfig(server.URL))
	res, err := c.Login(context.Background(), "SN001", "secret")
	require.NoError(t, err)

	_, err = c.FetchExport(context.Background(), res.Session)
	require.Error(t, err)
	assert.True(t, IsTransportFailure(err))
	assert.ErrorIs(t, err, ErrBadStatus)
}

func TestClient_DecodesCharset(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sc_pro.asp", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/view.asp", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Jos\xe9\t2024-05-26 08:15:00"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Charset = "windows-1252"
	c := newTestClient(t, cfg)

	res, err := c.Login(context.Background(), "SN001", "secret")
	require.NoError(t, err)
	body, err := c.FetchExport(context.Background(), res.Session)
	require.NoError(t, err)
	assert.Equal(t, "José\t2024-05-26 08:15:00", body)
}

func TestNewClient_UnknownCharset(t *testing.T) {
	cfg := testConfig("http://portal.test")
	cfg.Charset = "klingon"
	_, err := NewClient(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestClient_IsEmptyMarker(t *testing.T) {
	c := newTestClient(t, testConfig("http://portal.test"))
	assert.True(t, c.IsEmptyMarker("<script>window.location='default.asp'</script>\n1\t2\n"))
	assert.False(t, c.IsEmptyMarker("1\t26/05/2024 08:15:00"))
}

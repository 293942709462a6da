package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phobos.org.uk/foreman/internal/config"
	"phobos.org.uk/foreman/internal/logging"
	"phobos.org.uk/foreman/internal/testutil"
	"phobos.org.uk/foreman/internal/tlsutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.SessionLogDir = t.TempDir()
	cfg.KillGrace = 200 * time.Millisecond
	cfg.AvailabilityTimeout = time.Second
	return cfg
}

func newTestService(t *testing.T, cfg *config.Config) *Service {
	t.Helper()
	s := New(cfg, "test-version", Options{Logger: logging.Discard("service-test")})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestService(t, testConfig(t))

	req := httptest.NewRequest("GET", "/status", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"version":"test-version"`)
	require.Contains(t, w.Body.String(), `"type":"orchestrator"`)
	require.Contains(t, w.Body.String(), `"interfaces":["statusable","invokable","observable"]`)
	require.Contains(t, w.Body.String(), `"running":0`)
}

func TestCreateInvocationValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing prompt",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "prompt is required",
		},
		{
			name:       "invalid json",
			body:       `{invalid`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid JSON",
		},
		{
			name:       "unknown provider",
			body:       `{"prompt":"hi","provider":"eliza"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "unknown provider type",
		},
		{
			name:       "invalid mode",
			body:       `{"prompt":"hi","mode":"yolo"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "mode must be plan, code or analyze",
		},
		{
			name:       "unsafe session id",
			body:       `{"prompt":"hi","session_id":"../../etc"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "session_id contains invalid characters",
		},
		{
			name:       "unsafe log id",
			body:       `{"prompt":"hi","log_id":"a/b"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "log_id contains invalid characters",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newTestService(t, testConfig(t))

			req := httptest.NewRequest("POST", "/invocations", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			s.Router().ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
			require.Contains(t, w.Body.String(), tt.wantError)
		})
	}
}

func TestInvocationNotFound(t *testing.T) {
	t.Parallel()

	s := newTestService(t, testConfig(t))
	router := s.Router()

	for _, tc := range []struct{ method, path string }{
		{"GET", "/invocations/nope"},
		{"POST", "/invocations/nope/cancel"},
		{"GET", "/sessions/nope"},
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, tc.path)
		assert.Contains(t, w.Body.String(), `"error":"not_found"`, tc.path)
	}
}

func TestSessionLogsDisabled(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.SessionLogDir = ""
	s := newTestService(t, cfg)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest("GET", "/sessions", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "session_logs_unavailable")
}

func TestLogsEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestService(t, testConfig(t))
	s.log.Info("hello", nil)
	s.log.WithInvocation("inv-9").Warn("careful", nil)
	router := s.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/logs?invocation_id=inv-9", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var result logging.QueryResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "careful", result.Entries[0].Message)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/logs?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/logs/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"warn":1`)
}

func TestTokenAuth(t *testing.T) {
	t.Parallel()

	hash, err := HashToken("s3cret-token")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))
	assert.True(t, VerifyToken("s3cret-token", hash))
	assert.False(t, VerifyToken("wrong", hash))
	assert.False(t, VerifyToken("s3cret-token", "not-a-hash"))

	_, err = HashToken("")
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.TokenHash = hash
	s := newTestService(t, cfg)
	router := s.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/status", nil))
	assert.Equal(t, http.StatusOK, w.Code, "status stays open")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/logs/stats", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "unauthorized")

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/logs/stats", nil)
		req.Header.Set("Authorization", "Bearer s3cret-token")
		w = httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	req := httptest.NewRequest("GET", "/logs/stats", nil)
	req.Header.Set("Authorization", "Bearer other")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProvidersEndpoint(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.DefaultProvider = "codex"
	cfg.Providers = map[string]config.ProviderConfig{
		"aider": {Binary: "foreman-missing-aider-xyz"},
	}
	s := newTestService(t, cfg)

	server := httptest.NewServer(s.Router())
	defer server.Close()
	e := httpexpect.Default(t, server.URL)

	providers := e.GET("/providers").
		Expect().
		Status(http.StatusOK).
		JSON().Object().Value("providers").Array()
	providers.Length().IsEqual(9)

	for _, v := range providers.Iter() {
		obj := v.Object()
		switch obj.Value("type").String().Raw() {
		case "codex":
			obj.HasValue("default", true).HasValue("supports_resume", true)
		case "aider":
			obj.HasValue("available", false).HasValue("supports_resume", false)
		case "claude":
			obj.HasValue("default", false)
		}
	}
}

func TestInvocationLifecycle(t *testing.T) {
	t.Parallel()

	script := testutil.WriteScript(t, "claude", testutil.EchoScript(
		testutil.ClaudeStream("e2e-session-0001", "Service says hi")))
	cfg := testConfig(t)
	cfg.Providers = map[string]config.ProviderConfig{"claude": {Binary: script}}
	s := newTestService(t, cfg)

	server := httptest.NewServer(s.Router())
	defer server.Close()
	e := httpexpect.Default(t, server.URL)

	created := e.POST("/invocations").
		WithJSON(map[string]any{"prompt": "say hi", "mode": "analyze", "log_id": "ticket-7"}).
		Expect().
		Status(http.StatusCreated).
		JSON().Object()
	created.HasValue("log_id", "ticket-7").HasValue("provider", "claude").HasValue("state", "running")
	id := created.Value("invocation_id").String().Raw()

	testutil.Eventually(t, 10*time.Second, func() bool {
		state := e.GET("/invocations/" + id).Expect().Status(http.StatusOK).
			JSON().Object().Value("state").String().Raw()
		return state != "running"
	})

	inv := e.GET("/invocations/" + id).Expect().Status(http.StatusOK).JSON().Object()
	inv.HasValue("state", "completed")
	inv.Value("command").String().Contains("--permission-mode")
	outcome := inv.Value("outcome").Object()
	outcome.HasValue("attempts", 1).HasValue("fell_back", false)
	result := outcome.Value("result").Object()
	result.HasValue("success", true).
		HasValue("output", "Service says hi").
		HasValue("session_id", "e2e-session-0001")

	e.GET("/invocations").Expect().Status(http.StatusOK).
		JSON().Object().Value("invocations").Array().Length().IsEqual(1)

	session := e.GET("/sessions/ticket-7").Expect().Status(http.StatusOK).JSON().Object()
	records := session.Value("records").Array()
	records.Value(0).Object().HasValue("type", "start").HasValue("provider", "claude")

	e.GET("/sessions").Expect().Status(http.StatusOK).
		JSON().Object().HasValue("total", 1)

	e.GET("/metrics").Expect().Status(http.StatusOK).
		Body().Contains(`foreman_provider_invocations_total{outcome="success",provider="claude"} 1`)

	e.POST("/invocations/" + id + "/cancel").Expect().Status(http.StatusConflict).
		JSON().Object().HasValue("error", "already_completed")
}

func TestInvocationCancel(t *testing.T) {
	t.Parallel()

	script := testutil.WriteScript(t, "codex", testutil.SleepScript(30, false))
	cfg := testConfig(t)
	cfg.Providers = map[string]config.ProviderConfig{"codex": {Binary: script}}
	s := newTestService(t, cfg)

	server := httptest.NewServer(s.Router())
	defer server.Close()
	e := httpexpect.Default(t, server.URL)

	id := e.POST("/invocations").
		WithJSON(map[string]any{"prompt": "long job", "provider": "codex", "session_id": "thr-prior-01"}).
		Expect().
		Status(http.StatusCreated).
		JSON().Object().Value("invocation_id").String().Raw()

	testutil.Eventually(t, 5*time.Second, func() bool {
		return e.GET("/invocations/"+id).Expect().JSON().Object().Value("chunks").Number().Raw() > 0
	})

	e.POST("/invocations/" + id + "/cancel").Expect().Status(http.StatusOK).
		JSON().Object().HasValue("state", "cancelled")
	e.POST("/invocations/" + id + "/cancel").Expect().Status(http.StatusConflict)

	testutil.Eventually(t, 10*time.Second, func() bool {
		return e.GET("/invocations/"+id).Expect().JSON().Object().Value("state").String().Raw() == "cancelled"
	})

	outcome := e.GET("/invocations/" + id).Expect().JSON().Object().Value("outcome").Object()
	outcome.HasValue("attempts", 1).HasValue("fell_back", false)
	outcome.Value("result").Object().HasValue("error", "invocation cancelled")
}

func TestServeAndShutdown(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Port = testutil.AllocateTestPort(t)
	s := New(cfg, "test-version", Options{Logger: logging.Discard("service-test")})

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	url := fmt.Sprintf("http://127.0.0.1:%d/status", cfg.Port)
	testutil.WaitForHealthy(t, url, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	require.ErrorIs(t, <-errCh, http.ErrServerClosed)
}

func TestServeTLS(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Port = testutil.AllocateTestPort(t)
	dir := t.TempDir()
	cfg.TLS = config.TLSConfig{
		Enabled: true,
		Cert:    filepath.Join(dir, "cert.pem"),
		Key:     filepath.Join(dir, "key.pem"),
	}
	s := New(cfg, "test-version", Options{Logger: logging.Discard("service-test")})

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	var client *http.Client
	testutil.Eventually(t, 5*time.Second, func() bool {
		c, err := tlsutil.LoopbackClient(cfg.TLS.Cert, time.Second)
		client = c
		return err == nil
	})

	url := fmt.Sprintf("https://127.0.0.1:%d/status", cfg.Port)
	testutil.WaitForHealthyClient(t, client, url, 5*time.Second)

	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var status StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.True(t, status.Config.TLS)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	require.ErrorIs(t, <-errCh, http.ErrServerClosed)
}

func TestFinishedInvocationsAreEvicted(t *testing.T) {
	t.Parallel()

	script := testutil.WriteScript(t, "claude", testutil.EchoScript(
		testutil.ClaudeStream("evict-session-01", "done")))
	cfg := testConfig(t)
	cfg.Providers = map[string]config.ProviderConfig{"claude": {Binary: script}}
	s := New(cfg, "test-version", Options{Logger: logging.Discard("service-test"), Retain: 2})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})

	server := httptest.NewServer(s.Router())
	defer server.Close()
	e := httpexpect.Default(t, server.URL)

	var ids []string
	for i := 0; i < 4; i++ {
		id := e.POST("/invocations").WithJSON(map[string]any{"prompt": "p"}).
			Expect().Status(http.StatusCreated).
			JSON().Object().Value("invocation_id").String().Raw()
		testutil.Eventually(t, 10*time.Second, func() bool {
			return e.GET("/invocations/"+id).Expect().JSON().Object().Value("state").String().Raw() != "running"
		})
		ids = append(ids, id)
	}

	testutil.Eventually(t, 5*time.Second, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.invocations) == 2
	})

	// Only the two most recently finished remain.
	e.GET("/invocations/" + ids[0]).Expect().Status(http.StatusNotFound)
	e.GET("/invocations/" + ids[1]).Expect().Status(http.StatusNotFound)
	e.GET("/invocations/" + ids[2]).Expect().Status(http.StatusOK)
	e.GET("/invocations/" + ids[3]).Expect().Status(http.StatusOK)
}

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"abrplink/backend/services/abrp-agent/internal/auth"
	appconfig "abrplink/backend/services/abrp-agent/internal/config"
	"abrplink/backend/services/abrp-agent/internal/service"
)

func testConfig() *appconfig.Config {
	cfg := appconfig.Defaults()
	cfg.ABRP.APIKey = "key"
	cfg.ABRP.URL = "http://127.0.0.1:1/tlm/send"
	cfg.Control.JWTSecret = "secret"
	cfg.Control.Port = "127.0.0.1:0"
	cfg.Registry.Backend = "memory"
	cfg.Registry.Static = map[string]string{
		"m.time.utc":   "1700000000",
		"v.b.soc":      "71.4",
		"v.e.parktime": "120",
	}
	cfg.Agent.Autostart = true
	return cfg
}

func runApp(t *testing.T, cfg *appconfig.Config) (*App, *httptest.Server) {
	t.Helper()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	application, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("app did not stop")
		}
		application.Close()
	})

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(srv.Close)
	return application, srv
}

func call(t *testing.T, srv *httptest.Server, token, method, path, body string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, srv.URL+path, bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func TestAppControlFlow(t *testing.T) {
	cfg := testConfig()
	application, srv := runApp(t, cfg)

	token, err := auth.NewTokenService(cfg.Control.JWTSecret, time.Minute).Issue("control")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	st, err := application.Controller().Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != service.StateStopped {
		t.Fatalf("expected autostart to be skipped without token, got %+v", st)
	}

	resp := call(t, srv, token, http.MethodGet, "/api/telemetry", "")
	var rec map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&rec)
	resp.Body.Close()
	if rec["soc"] != float64(71) || rec["is_parked"] != true {
		t.Fatalf("unexpected telemetry %v", rec)
	}
	if _, ok := rec["power"]; ok {
		t.Fatalf("expected unsupported power omitted")
	}

	resp = call(t, srv, token, http.MethodPut, "/api/config/token", `{"token":"abrp-user"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("set token status %d", resp.StatusCode)
	}

	resp = call(t, srv, token, http.MethodPost, "/api/agent/send", `{"enabled":true}`)
	_ = json.NewDecoder(resp.Body).Decode(&st)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || st.State != service.StateRunning {
		t.Fatalf("expected running agent, got %d %+v", resp.StatusCode, st)
	}
}

func TestAppWithRedisBackends(t *testing.T) {
	srv := miniredis.RunT(t)
	srv.HSet("vehicle:metrics", "v.b.soc", "55")
	srv.HSet("config:usr", "abrp.user_token", "stored-token")

	cfg := testConfig()
	cfg.Redis.Addr = srv.Addr()
	cfg.Registry.Backend = "redis"
	cfg.ConfigStore.Backend = "redis"

	application, _ := runApp(t, cfg)

	deadline := time.Now().Add(2 * time.Second)
	for {
		st, err := application.Controller().Status(context.Background())
		if err == nil && st.State == service.StateRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected autostart with stored token, got %+v %v", st, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec, err := application.Controller().Info(context.Background())
	if err != nil || rec.SOC == nil || *rec.SOC != 55 {
		t.Fatalf("expected soc from redis registry, got %+v %v", rec, err)
	}
}

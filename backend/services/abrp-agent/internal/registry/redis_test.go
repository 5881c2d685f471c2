package registry

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestRedisRegistryGetValuesSkipsMissing(t *testing.T) {
	srv, client := newTestRedis(t)
	srv.HSet(DefaultHashKey, "v.b.soc", "81.5", "v.c.state", "charging")

	reg := NewRedisRegistry(client, "")
	values, err := reg.GetValues(context.Background(), []string{"v.b.soc", "v.c.state", "v.b.soh"})
	if err != nil {
		t.Fatalf("get values: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("expected 2 values, got %v", values)
	}
	if values["v.b.soc"] != "81.5" {
		t.Fatalf("expected raw soc string, got %v", values["v.b.soc"])
	}
	if _, ok := values["v.b.soh"]; ok {
		t.Fatalf("expected unsupported signal to be absent")
	}
}

func TestRedisRegistryHasValue(t *testing.T) {
	srv, client := newTestRedis(t)
	srv.HSet("car:1", "v.p.speed", "42")

	reg := NewRedisRegistry(client, "car:1")
	ok, err := reg.HasValue(context.Background(), "v.p.speed")
	if err != nil || !ok {
		t.Fatalf("expected speed present, got %v %v", ok, err)
	}
	ok, err = reg.HasValue(context.Background(), "v.p.latitude")
	if err != nil || ok {
		t.Fatalf("expected latitude absent, got %v %v", ok, err)
	}
}

func TestRedisRegistryErrorsWhenServerGone(t *testing.T) {
	srv, client := newTestRedis(t)
	reg := NewRedisRegistry(client, "")
	srv.Close()

	if _, err := reg.GetValues(context.Background(), []string{"v.b.soc"}); err == nil {
		t.Fatalf("expected error when redis is unreachable")
	}
}

func TestMemoryRegistry(t *testing.T) {
	reg := NewMemoryRegistry(map[string]any{"v.b.soc": 50.0, "v.b.soh": nil})
	reg.Set("v.p.speed", 12)

	values, _ := reg.GetValues(context.Background(), []string{"v.b.soc", "v.b.soh", "v.p.speed"})
	if len(values) != 2 {
		t.Fatalf("expected nil value to be treated as unsupported, got %v", values)
	}
	reg.Delete("v.b.soc")
	if ok, _ := reg.HasValue(context.Background(), "v.b.soc"); ok {
		t.Fatalf("expected deleted signal to be unsupported")
	}
}

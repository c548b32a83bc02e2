package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/radieske/elimination-zones/internal/shared/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "round-scheduler")

	cfg := config.Load()
	if cfg.RoundLeadTime != 60*time.Second || cfg.RoundDuration != 300*time.Second {
		t.Errorf("round times = %s / %s", cfg.RoundLeadTime, cfg.RoundDuration)
	}
	if cfg.SchedulerInterval != time.Second {
		t.Errorf("interval = %s", cfg.SchedulerInterval)
	}
	if cfg.HTTPPort != "" || cfg.MetricsPort != "9096" {
		t.Errorf("ports = %q / %q", cfg.HTTPPort, cfg.MetricsPort)
	}
	if cfg.TopicRoundSettled != "round_settled" || cfg.RedisPubSubChannel != "zones_round_broadcast" {
		t.Errorf("topics = %q / %q", cfg.TopicRoundSettled, cfg.RedisPubSubChannel)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "zones-service")
	t.Setenv("ROUND_DURATION", "90s")
	t.Setenv("ZONE_LOCK_TIMEOUT", "250ms")
	t.Setenv("SCHEDULER_INTERVAL", "not-a-duration")
	t.Setenv("HTTP_PORT_ZONES", "18080")

	cfg := config.Load()
	if cfg.RoundDuration != 90*time.Second {
		t.Errorf("duration = %s", cfg.RoundDuration)
	}
	if cfg.ZoneLockTimeout != 250*time.Millisecond {
		t.Errorf("lock timeout = %s", cfg.ZoneLockTimeout)
	}
	if cfg.SchedulerInterval != time.Second {
		t.Errorf("invalid interval must fall back, got %s", cfg.SchedulerInterval)
	}
	if cfg.HTTPPort != "18080" {
		t.Errorf("port = %s", cfg.HTTPPort)
	}
}

func TestLoadFor_DefaultServiceName(t *testing.T) {
	t.Setenv("SERVICE_NAME", "")
	os.Unsetenv("SERVICE_NAME")

	cfg := config.LoadFor("wallet-service")
	if cfg.ServiceName != "wallet-service" {
		t.Fatalf("service = %q", cfg.ServiceName)
	}
	if cfg.HTTPPort != "8082" || cfg.MetricsPort != "9098" {
		t.Errorf("ports = %q / %q", cfg.HTTPPort, cfg.MetricsPort)
	}

	t.Setenv("SERVICE_NAME", "api-gateway")
	if got := config.LoadFor("wallet-service").ServiceName; got != "api-gateway" {
		t.Errorf("env must win over default, got %q", got)
	}
}

func TestLoad_RedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "3")
	if got := config.Load().RedisDB; got != 3 {
		t.Errorf("redis db = %d", got)
	}
	t.Setenv("REDIS_DB", "-1")
	if got := config.Load().RedisDB; got != 0 {
		t.Errorf("negative db must fall back, got %d", got)
	}
}

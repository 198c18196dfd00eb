package utils

import (
	"testing"
	"time"
)

func TestPostgresPoolDefaults(t *testing.T) {
	got := PostgresPoolConfig{}.withDefaults()
	if got.MaxOpenConns != 25 || got.MaxIdleConns != 25 {
		t.Fatalf("unexpected pool sizing: %+v", got)
	}
	if got.PingTimeout != 5*time.Second {
		t.Fatalf("unexpected ping timeout: %v", got.PingTimeout)
	}
}

func TestPostgresPoolDefaults_ExplicitValuesKept(t *testing.T) {
	in := PostgresPoolConfig{MaxOpenConns: 5, ConnMaxLifetime: time.Minute}
	got := in.withDefaults()
	if got.MaxOpenConns != 5 {
		t.Fatalf("MaxOpenConns overridden: %d", got.MaxOpenConns)
	}
	if got.ConnMaxLifetime != time.Minute {
		t.Fatalf("ConnMaxLifetime overridden: %v", got.ConnMaxLifetime)
	}
	if got.MaxIdleConns != 25 {
		t.Fatalf("unset field not defaulted: %d", got.MaxIdleConns)
	}
}

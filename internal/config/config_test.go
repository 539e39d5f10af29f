package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"ENV", "HOST", "ALLOWED_ORIGINS", "FRONTEND_URL", "FRONTEND_URL_2", "APP_URL", "TRUST_PROXY", "OUTBOX_POLL_INTERVAL", "OUTBOX_MAX_ATTEMPTS"} {
		t.Setenv(k, "")
	}
	c := Load()
	if c.IsProduction() || c.AllowedHost != "" {
		t.Fatalf("development config = %+v", c)
	}
	if !reflect.DeepEqual(c.AllowedOrigins, []string{"http://localhost:3000"}) {
		t.Fatalf("origins = %v", c.AllowedOrigins)
	}
	if c.OutboxPollInterval != 2*time.Second || c.OutboxMaxAttempts != 5 || c.TrustProxy {
		t.Fatalf("outbox settings = %s/%d trust=%t", c.OutboxPollInterval, c.OutboxMaxAttempts, c.TrustProxy)
	}
}

func TestLoadProduction(t *testing.T) {
	t.Setenv("ENV", "Production")
	t.Setenv("HOST", "https://api.voiceconnect.com:443/v1")
	t.Setenv("ALLOWED_ORIGINS", "https://voiceconnect.com, https://www.voiceconnect.com ,")
	t.Setenv("APP_URL", "https://voiceconnect.com/")
	t.Setenv("TRUST_PROXY", "true")
	t.Setenv("OUTBOX_POLL_INTERVAL", "500ms")
	t.Setenv("OUTBOX_MAX_ATTEMPTS", "-3")

	c := Load()
	if !c.IsProduction() || c.AllowedHost != "api.voiceconnect.com" {
		t.Fatalf("production host = %q", c.AllowedHost)
	}
	want := []string{"https://voiceconnect.com", "https://www.voiceconnect.com"}
	if !reflect.DeepEqual(c.AllowedOrigins, want) {
		t.Fatalf("origins = %v", c.AllowedOrigins)
	}
	if c.AppURL != "https://voiceconnect.com" || !c.TrustProxy {
		t.Fatalf("app url = %q trust = %t", c.AppURL, c.TrustProxy)
	}
	if c.OutboxPollInterval != 500*time.Millisecond || c.OutboxMaxAttempts != 5 {
		t.Fatalf("outbox = %s/%d", c.OutboxPollInterval, c.OutboxMaxAttempts)
	}
}

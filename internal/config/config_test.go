package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SECRET_SALT", "pepper")
	t.Setenv("ENCRYPTION_KEY", "MDEyMzQ1Njc4OTAxMjM0NTY3ODkwMTIzNDU2Nzg5MDE=")
	t.Setenv("SMS_IR_API_KEY", "sms-key")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.OTP.Validity != 2*time.Minute {
		t.Fatalf("expected 2m validity, got %s", cfg.OTP.Validity)
	}
	if cfg.OTP.Period != 120*time.Second {
		t.Fatalf("expected 120s period, got %s", cfg.OTP.Period)
	}
	if cfg.OTP.RequestLimit != 5 || cfg.OTP.RequestWindow != 30*time.Second {
		t.Fatalf("unexpected request limit %d/%s", cfg.OTP.RequestLimit, cfg.OTP.RequestWindow)
	}
	if cfg.SMS.TemplateID != 238824 {
		t.Fatalf("unexpected template id %d", cfg.SMS.TemplateID)
	}
	if cfg.SMS.SuccessMessage != "موفق" {
		t.Fatalf("unexpected success message %q", cfg.SMS.SuccessMessage)
	}
	if cfg.Storage.Backend != BackendDynamoDB || cfg.Storage.OTPStore != OTPStoreDatabase {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
}

func TestLoadRequiresSecrets(t *testing.T) {
	cases := []struct {
		name  string
		unset string
	}{
		{name: "salt", unset: "SECRET_SALT"},
		{name: "encryption key", unset: "ENCRYPTION_KEY"},
		{name: "sms key", unset: "SMS_IR_API_KEY"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tc.unset, "")

			_, err := Load()
			if err == nil {
				t.Fatalf("expected error when %s is missing", tc.unset)
			}
			if !strings.Contains(err.Error(), tc.unset) {
				t.Fatalf("expected error to name %s, got %v", tc.unset, err)
			}
		})
	}
}

func TestLoadPostgresNeedsURL(t *testing.T) {
	setRequired(t)
	t.Setenv("STORAGE_BACKEND", "postgres")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/phoneauth")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Backend != BackendPostgres {
		t.Fatalf("expected postgres backend, got %s", cfg.Storage.Backend)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	setRequired(t)
	t.Setenv("STORAGE_BACKEND", "mongo")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

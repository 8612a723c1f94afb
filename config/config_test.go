package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server_url: https://staging.example.com
user_id: u-1
device_id: d-1
timezone: Asia/Tokyo
capture_root: /data/captures
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerURL != "https://staging.example.com" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.UserID != "u-1" || cfg.DeviceID != "d-1" {
		t.Errorf("identity = %q/%q", cfg.UserID, cfg.DeviceID)
	}
	if cfg.CaptureRoot != "/data/captures" {
		t.Errorf("CaptureRoot = %q", cfg.CaptureRoot)
	}
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if loc.String() != "Asia/Tokyo" {
		t.Errorf("Location = %v", loc)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerURL != DefaultServerURL {
		t.Errorf("ServerURL = %q, want default", cfg.ServerURL)
	}
	if cfg.CaptureRoot == "" {
		t.Error("CaptureRoot empty")
	}
	if cfg.RetentionDays != DefaultRetentionDays {
		t.Errorf("RetentionDays = %d, want %d", cfg.RetentionDays, DefaultRetentionDays)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server_url: https://file.example.com
user_id: file-user
`)
	t.Setenv("KIKU_SERVER_URL", "https://env.example.com")
	t.Setenv("KIKU_USER_ID", "env-user")
	t.Setenv("KIKU_DEVICE_ID", "env-device")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerURL != "https://env.example.com" {
		t.Errorf("ServerURL = %q, want env value", cfg.ServerURL)
	}
	if cfg.UserID != "env-user" || cfg.DeviceID != "env-device" {
		t.Errorf("identity = %q/%q, want env values", cfg.UserID, cfg.DeviceID)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "server_url: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("Load accepted malformed YAML")
	}
}

func TestInvalidTimezone(t *testing.T) {
	cfg := &Config{Timezone: "Mars/Olympus"}
	if _, err := cfg.Location(); err == nil {
		t.Error("Location accepted invalid timezone")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	in := &Config{ServerURL: "https://x", UserID: "u", DeviceID: "d"}
	if err := in.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.ServerURL != "https://x" || out.UserID != "u" || out.DeviceID != "d" {
		t.Errorf("round trip = %+v", out)
	}
}

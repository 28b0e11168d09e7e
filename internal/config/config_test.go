package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "# empty config\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TargetPeriodMs != 16 {
		t.Errorf("TargetPeriodMs = %d, want 16", cfg.TargetPeriodMs)
	}
	if cfg.SyncRounds != 8 || cfg.SyncResyncRounds != 3 {
		t.Errorf("sync rounds = %d/%d, want 8/3", cfg.SyncRounds, cfg.SyncResyncRounds)
	}
	if cfg.Source != "mock" {
		t.Errorf("Source = %q, want mock", cfg.Source)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
WS_LISTEN_ADDR = :9000
TARGET_PERIOD_MS = 33
SOURCE = serial
SERIAL_PORT = /dev/ttyUSB0
OFFSET_ALPHA = 0.1
DISPLAY_I2C_ADDR = 0x3C
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WSListenAddr != ":9000" || cfg.TargetPeriodMs != 33 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.OffsetAlpha != 0.1 {
		t.Errorf("OffsetAlpha = %v, want 0.1", cfg.OffsetAlpha)
	}
	if cfg.DisplayI2CAddr != 0x3C {
		t.Errorf("DisplayI2CAddr = %#x, want 0x3C", cfg.DisplayI2CAddr)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"unknown key":              "NO_SUCH_KEY = 1\n",
		"bad source":               "SOURCE = carrier-pigeon\n",
		"imu without device":       "SOURCE = imu\n",
		"serial without port":      "SOURCE = serial\n",
		"alpha out of range":       "RTT_ALPHA = 1.5\n",
		"non-numeric period":       "TARGET_PERIOD_MS = fast\n",
		"malformed line":           "JUST_A_KEY\n",
		"accel range too high":     "IMU_ACCEL_RANGE = 9\n",
		"zero display interval":    "DISPLAY_UPDATE_INTERVAL = 0\n",
		"unsupported display addr": "DISPLAY_I2C_ADDR = 0x3D\n",
	}
	for name, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
}

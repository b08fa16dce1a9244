package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8644" || cfg.DataDir != "./escrowd-data" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	raw := `
ListenAddress = ":9000"
DataDir = "/var/lib/escrowd"
Env = "prod"
FeeBps = 250
FeeTreasury = "0x00000000000000000000000000000000000000aa"
Operator = "00000000000000000000000000000000000000bb"
AutoExecuteHorizonSeconds = 3600
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":9000" || cfg.FeeBps != 250 || cfg.AutoExecuteHorizonSeconds != 3600 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.MustAddress(cfg.FeeTreasury)[19] != 0xaa {
		t.Fatalf("treasury decoded wrong: %x", cfg.MustAddress(cfg.FeeTreasury))
	}
	if cfg.MustAddress(cfg.Operator)[19] != 0xbb {
		t.Fatalf("operator decoded wrong: %x", cfg.MustAddress(cfg.Operator))
	}
}

func TestLoadRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("FeeBps = 10001\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("out-of-range FeeBps accepted")
	}

	if err := os.WriteFile(path, []byte("Admin = \"nothex\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("malformed admin address accepted")
	}
}

func TestParseAddress(t *testing.T) {
	want := [20]byte{0: 0x01, 19: 0xff}
	for _, input := range []string{
		"01000000000000000000000000000000000000ff",
		"0x01000000000000000000000000000000000000ff",
		"  0X01000000000000000000000000000000000000ff ",
	} {
		got, err := ParseAddress(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("parse %q = %x", input, got)
		}
	}
	if _, err := ParseAddress("0x1234"); err == nil {
		t.Fatal("short address accepted")
	}
	if _, err := ParseAddress("zz00000000000000000000000000000000000000"); err == nil {
		t.Fatal("non-hex address accepted")
	}
}

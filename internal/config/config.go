// Package config loads adbpush's runtime defaults from an optional .env
// file plus the process environment, the same layered precedence the
// teacher's device config used, but parsed with a real env-file parser
// instead of a hand-rolled line scanner.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-envparse"
)

// Config holds the values adbpush falls back to when the matching flag is
// not passed on the command line.
type Config struct {
	// VendorID/ProductID narrow USB device discovery to one device when
	// more than one ADB-capable interface is attached. Zero means
	// "unset" — USB enumeration (internal/adb/transport) decides.
	VendorID  uint16
	ProductID uint16

	// UserID is embedded in the Android public-key wire encoding
	// (internal/adb/rsakey) and is typically "user@host".
	UserID string

	// RemotePath is the default destination path on the device.
	RemotePath string

	// Debug enables verbose session/stream logging (internal/adblog).
	Debug bool
}

// Load reads dotenvPath if it is non-empty (a missing file is an error),
// otherwise a .env in the project root if one exists, then overlays process
// environment variables of the same names, matching the precedence order
// of the teacher's config loader: file first, environment wins ties.
func Load(dotenvPath string) (*Config, error) {
	cfg := &Config{}

	if dotenvPath != "" {
		if err := applyEnvFile(cfg, dotenvPath); err != nil {
			return nil, err
		}
	} else if root, err := findProjectRoot(); err == nil {
		candidate := filepath.Join(root, ".env")
		if _, statErr := os.Stat(candidate); statErr == nil {
			if err := applyEnvFile(cfg, candidate); err != nil {
				return nil, err
			}
		}
	}

	applyEnv(cfg, os.Environ())
	return cfg, nil
}

func applyEnvFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	vars, err := envparse.Parse(f)
	if err != nil {
		return err
	}

	pairs := make([]string, 0, len(vars))
	for k, v := range vars {
		pairs = append(pairs, k+"="+v)
	}
	applyEnv(cfg, pairs)
	return nil
}

func applyEnv(cfg *Config, kvPairs []string) {
	for _, kv := range kvPairs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" {
			continue
		}
		switch key {
		case "ADBPUSH_VENDOR_ID":
			if n, err := strconv.ParseUint(value, 0, 16); err == nil {
				cfg.VendorID = uint16(n)
			}
		case "ADBPUSH_PRODUCT_ID":
			if n, err := strconv.ParseUint(value, 0, 16); err == nil {
				cfg.ProductID = uint16(n)
			}
		case "ADBPUSH_USER_ID":
			cfg.UserID = value
		case "ADBPUSH_REMOTE_PATH":
			cfg.RemotePath = value
		case "ADBPUSH_DEBUG":
			if b, err := strconv.ParseBool(value); err == nil {
				cfg.Debug = b
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod,
// the same heuristic the teacher's loader used to find a co-located .env.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir, nil
		}
		dir = parent
	}
}

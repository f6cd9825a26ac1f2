package main

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bobg/bucketset/bucket"
	"github.com/bobg/bucketset/store"
)

// config is the parsed contents of a config file.
//
// A config file is JSON (comments allowed) or, if its name ends in .yaml or .yml, YAML:
//
//	{
//	  // Passed to store.FromConfig.
//	  "store": {"type": "sqlite3", "conn": "notes.db"},
//
//	  // 0 (the default) buckets notes by first letter;
//	  // N buckets them by an N-bit prefix of their addresses.
//	  "bits": 0,
//
//	  "policy": "best-effort",
//	  "concurrency": 8,
//	  "log_level": "info"
//	}
type config struct {
	store       map[string]interface{}
	bits        int
	policy      bucket.Policy
	concurrency int
	logLevel    slog.Level
}

func loadConfig(path string) (*config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}
	raw, err := decodeConfig(path, data)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding config file %s", path)
	}
	return parseConfig(raw)
}

func decodeConfig(path string, data []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

func parseConfig(raw map[string]interface{}) (*config, error) {
	var (
		c  = &config{concurrency: bucket.DefaultConcurrency}
		ok bool
	)

	c.store, ok = raw["store"].(map[string]interface{})
	if !ok {
		return nil, errors.New(`missing "store" section`)
	}

	bits, _, err := store.Int(raw, "bits")
	if err != nil {
		return nil, err
	}
	if bits < 0 || bits > bucket.MaxPrefixBits {
		return nil, errors.Errorf("bits is %d, must be between 0 and %d", bits, bucket.MaxPrefixBits)
	}
	c.bits = bits

	policy, _ := raw["policy"].(string)
	if c.policy, err = bucket.ParsePolicy(policy); err != nil {
		return nil, err
	}

	if n, ok, err := store.Int(raw, "concurrency"); err != nil {
		return nil, err
	} else if ok {
		c.concurrency = n
	}

	if level, ok := raw["log_level"].(string); ok {
		if err := c.logLevel.UnmarshalText([]byte(level)); err != nil {
			return nil, errors.Wrapf(err, "parsing log_level %q", level)
		}
	}

	return c, nil
}

package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

type ConfigParam struct {
	DefaultTenantID          string `toml:"default_tenant_id"`
	DefaultAuthor            string `toml:"default_author"`
	SingleTenantMode         bool   `toml:"single_tenant_mode"`
	CompressDefinitions      bool   `toml:"compress_definitions"`
	RetentionCeilingDays     int    `toml:"retention_ceiling_days"`
	MaxCommitRetryAttempts   uint   `toml:"max_commit_retry_attempts"`
	SnapshotOnCommit         bool   `toml:"snapshot_on_commit"`
	MaxStagedObjectSizeBytes int    `toml:"max_staged_object_size_bytes"`
}

var cfg *ConfigParam

func Config() *ConfigParam {
	return cfg
}

func LoadConfig(filename string) error {
	if filename == "" {
		cfg = defaultConfig()
		return nil
	}
	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}
	cp := *defaultConfig()
	if _, err := toml.Decode(string(content), &cp); err != nil {
		return fmt.Errorf("error parsing config file: %v", err)
	}
	cfg = &cp
	return nil
}

func defaultConfig() *ConfigParam {
	return &ConfigParam{
		DefaultTenantID:          "TLOCAL",
		DefaultAuthor:            "system",
		SingleTenantMode:         true,
		CompressDefinitions:      true,
		RetentionCeilingDays:     5 * 365,
		MaxCommitRetryAttempts:   3,
		SnapshotOnCommit:         true,
		MaxStagedObjectSizeBytes: 1 << 20,
	}
}

func init() {
	if err := LoadConfig(""); err != nil {
		panic(err)
	}
}

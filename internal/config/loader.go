package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "HIERCTX_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// subsections are the nested blocks an environment key may address. The
// first underscore after the section separates the field otherwise.
var subsections = map[string][]string{
	"vectorstore": {"chromem", "qdrant"},
	"ingest":      {"chunk", "redaction", "watch"},
}

// Load reads configuration from a YAML file, then applies HIERCTX_*
// environment overrides, defaults and validation.
//
// Precedence (highest first):
//  1. Environment variables (HIERCTX_SERVER_PORT, HIERCTX_VECTORSTORE_QDRANT_HOST, ...)
//  2. The YAML file at path
//  3. Defaults
//
// An empty path uses DefaultPath. A missing file is not an error. An
// existing file must be a regular file no larger than 1MB and must not be
// writable by group or others.
//
// Environment keys map to config keys by lowercasing and splitting the
// section from the field at the first underscore:
//
//	HIERCTX_SERVER_API_KEY             -> server.api_key
//	HIERCTX_RETRIEVAL_PER_LEVEL_K      -> retrieval.per_level_k
//	HIERCTX_INGEST_CHUNK_SIZE          -> ingest.chunk.size
//	HIERCTX_VECTORSTORE_QDRANT_API_KEY -> vectorstore.qdrant.api_key
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	content, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	if content != nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// DefaultPath returns ~/.config/hierctx/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "hierctx", "config.yaml"), nil
}

// envKey maps HIERCTX_SECTION_FIELD_NAME to section.field_name, honoring
// known subsections.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	for _, sub := range subsections[section] {
		if rest, found := strings.CutPrefix(field, sub+"_"); found {
			return section + "." + sub + "." + rest
		}
	}
	return section + "." + field
}

// readConfigFile returns the file content, or nil when the file does not
// exist. The file is opened once and checked through its descriptor.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(content) > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: exceeds %d bytes", maxConfigFileSize)
	}
	return content, nil
}

func validateConfigFileProperties(info os.FileInfo) error {
	if !info.Mode().IsRegular() {
		return fmt.Errorf("config path is not a regular file")
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	// Windows does not report POSIX permission bits.
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o022 != 0 {
		return fmt.Errorf("config file is writable by group or others (mode %04o); use 0600 or 0640", info.Mode().Perm())
	}
	return nil
}

// EnsureConfigDir creates the directory of DefaultPath with 0700
// permissions.
func EnsureConfigDir() error {
	path, err := DefaultPath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	return nil
}

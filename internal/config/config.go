// Package config loads funcmerge.toml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up from the working directory
// towards the filesystem root.
const FileName = "funcmerge.toml"

// Output formats.
const (
	FormatText    = "text"
	FormatMsgpack = "msgpack"
)

// Config is the decoded funcmerge.toml.
type Config struct {
	Target Target `toml:"target"`
	Merge  Merge  `toml:"merge"`
	Output Output `toml:"output"`
}

// Target describes the object format merged modules are emitted for.
type Target struct {
	GlobalAliases bool `toml:"global_aliases"`
}

// SupportsGlobalAliases reports whether superseded functions may become
// aliases.
func (t Target) SupportsGlobalAliases() bool {
	return t.GlobalAliases
}

// Merge holds engine options.
type Merge struct {
	SanityCheck int  `toml:"sanity_check"`
	SimplifyCFG bool `toml:"simplify_cfg"`
}

// Output selects how merged modules are written.
type Output struct {
	Format string `toml:"format"`
}

// Default returns the configuration used when no file is found.
func Default() Config {
	return Config{
		Output: Output{Format: FormatText},
	}
}

// Find returns the nearest funcmerge.toml at or above startDir.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load finds and reads the configuration for startDir. Without a file it
// returns Default and an empty path.
func Load(startDir string) (Config, string, error) {
	path, ok, err := Find(startDir)
	if err != nil || !ok {
		return Default(), "", err
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return Default(), path, err
	}
	return cfg, path, nil
}

// LoadFile reads one configuration file over the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}

	var errs []error
	for _, key := range meta.Undecoded() {
		errs = append(errs, fmt.Errorf("%s: unknown key %s", path, key))
	}
	if meta.IsDefined("merge", "sanity_check") && cfg.Merge.SanityCheck < 0 {
		errs = append(errs, fmt.Errorf("%s: [merge].sanity_check must not be negative", path))
	}
	if meta.IsDefined("output", "format") {
		cfg.Output.Format = strings.ToLower(strings.TrimSpace(cfg.Output.Format))
		if err := ValidateFormat(cfg.Output.Format); err != nil {
			errs = append(errs, fmt.Errorf("%s: [output].format: %w", path, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidateFormat checks an output format name.
func ValidateFormat(format string) error {
	switch format {
	case FormatText, FormatMsgpack:
		return nil
	default:
		return fmt.Errorf("unsupported format %q (expected %s|%s)", format, FormatText, FormatMsgpack)
	}
}

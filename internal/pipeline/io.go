package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"funcmerge/internal/config"
	"funcmerge/internal/ir"
)

// Extensions of the two module forms.
const (
	ExtText    = ".mf"
	ExtMsgpack = ".mfb"
)

// LoadModule reads a module file. Files ending in .mfb are decoded from the
// msgpack form; everything else is parsed as text.
func LoadModule(path string) (*ir.Module, error) {
	if strings.EqualFold(filepath.Ext(path), ExtMsgpack) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		m, err := ir.Decode(bufio.NewReader(f))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return m, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ir.Parse(path, string(data))
}

// WriteModule writes m in the given output format.
func WriteModule(w io.Writer, m *ir.Module, format string) error {
	switch format {
	case config.FormatMsgpack:
		return ir.Encode(w, m)
	case config.FormatText, "":
		return ir.Print(w, m)
	default:
		return config.ValidateFormat(format)
	}
}

// FormatForPath picks the output format from a file extension, falling back
// to def.
func FormatForPath(path, def string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtMsgpack:
		return config.FormatMsgpack
	case ExtText:
		return config.FormatText
	default:
		return def
	}
}

// OutputPath maps an input file to its file under dir, with the extension
// of format.
func OutputPath(dir, input, format string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	ext := ExtText
	if format == config.FormatMsgpack {
		ext = ExtMsgpack
	}
	return filepath.Join(dir, base+ext)
}

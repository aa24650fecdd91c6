package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Formatter writes a value in one output format
type Formatter interface {
	Format(w io.Writer, v any) error
}

// Config controls formatting
type Config struct {
	Format  string
	Pretty  bool
	NoColor bool
	// Width is the terminal width used to truncate table cells. Zero means
	// detect it, falling back to 120.
	Width int
}

// JSONFormatter formats output as JSON
type JSONFormatter struct {
	Pretty bool
}

// YAMLFormatter formats output as YAML
type YAMLFormatter struct{}

// NewFormatter creates a formatter based on format type
func NewFormatter(config Config) (Formatter, error) {
	switch config.Format {
	case "", "table":
		return NewTableFormatter(config), nil
	case "json":
		return &JSONFormatter{Pretty: config.Pretty}, nil
	case "yaml", "yml":
		return &YAMLFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", config.Format)
	}
}

func (f *JSONFormatter) Format(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	if f.Pretty {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(v)
}

func (f *YAMLFormatter) Format(w io.Writer, v any) error {
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(v)
}

// ColorEnabled reports whether colored output should be written to f.
func ColorEnabled(f *os.File, noColor bool) bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func terminalWidth() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	return 120
}

package out

import (
	"encoding/json"
	"fmt"
	"io"

	clierr "github.com/ggonzalez94/cycler/internal/errors"
)

// Format selects how command output is rendered.
type Format string

const (
	FormatPlain Format = "plain"
	FormatJSON  Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatPlain, "":
		return FormatPlain, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown output format %q (expected plain or json)", s))
	}
}

// Render writes v as indented JSON or hands off to the plain renderer.
func Render(w io.Writer, format Format, v any, plain func(io.Writer) error) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return clierr.Wrap(clierr.CodeInternal, "encode JSON output", err)
		}
		return nil
	}
	return plain(w)
}

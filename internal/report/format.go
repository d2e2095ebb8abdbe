package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Format names an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatJUnit    Format = "junit"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatXLSX     Format = "xlsx"
)

// Formats lists every supported format.
var Formats = []Format{FormatText, FormatJSON, FormatJUnit, FormatMarkdown, FormatHTML, FormatXLSX}

// ParseFormat accepts a format name, case-insensitively, plus the aliases
// "md", "xml" and "excel".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "txt", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "junit", "xml":
		return FormatJUnit, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unknown report format %q", s)
}

// Extension returns the file extension for f, with the dot.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatJUnit:
		return ".xml"
	case FormatMarkdown:
		return ".md"
	case FormatHTML:
		return ".html"
	case FormatXLSX:
		return ".xlsx"
	}
	return ".txt"
}

// Write renders r to w in format f.
func Write(w io.Writer, f Format, r *Report) error {
	switch f {
	case FormatText:
		return WriteText(w, r)
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatJUnit:
		return WriteJUnit(w, r)
	case FormatMarkdown:
		_, err := io.WriteString(w, Markdown(r))
		return err
	case FormatHTML:
		return WriteHTML(w, r)
	case FormatXLSX:
		return WriteXLSX(w, r)
	}
	return fmt.Errorf("unknown report format %q", f)
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName returns "<suite>-<runid prefix><ext>" for r.
func FileName(r *Report, f Format) string {
	name := strings.Trim(unsafeFileChars.ReplaceAllString(strings.ToLower(r.Suite()), "_"), "_")
	if name == "" {
		name = "suite"
	}
	id := r.RunID()
	if len(id) > 8 {
		id = id[:8]
	}
	return name + "-" + id + f.Extension()
}

// WriteFiles writes r in every format into dir and returns the paths.
func WriteFiles(dir string, r *Report, formats []Format) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	var paths []string
	for _, f := range formats {
		path := filepath.Join(dir, FileName(r, f))
		if err := writeFile(path, f, r); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, f Format, r *Report) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	if err := Write(out, f, r); err != nil {
		return fmt.Errorf("failed to write %s report: %w", f, err)
	}
	return nil
}

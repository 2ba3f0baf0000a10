package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/qualsim/internal/constants"
	"github.com/nvandessel/qualsim/internal/pathutil"
)

// ErrUnsupportedFormat is returned for formats other than json and yaml.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Encode writes doc to w as indented JSON or YAML.
func Encode(w io.Writer, doc *Document, format string) error {
	switch format {
	case constants.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding document: %w", err)
		}
	case constants.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding document: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encoding document: %w", err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return nil
}

// Decode reads a document written by Encode.
func Decode(r io.Reader, format string) (*Document, error) {
	var doc Document
	switch format {
	case constants.FormatJSON:
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding document: %w", err)
		}
	case constants.FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding document: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if doc.Version != constants.DocumentVersion {
		return nil, fmt.Errorf("unsupported document version: %d", doc.Version)
	}
	return &doc, nil
}

// FormatFromPath picks the format from a file extension. Unknown extensions
// are json.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return constants.FormatYAML
	default:
		return constants.FormatJSON
	}
}

// WriteFile writes doc to path after checking that path lies inside one of
// allowedDirs. Parent directories are created.
func WriteFile(path string, doc *Document, format string, allowedDirs []string) error {
	if err := pathutil.ValidatePath(path, allowedDirs); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	if err := Encode(f, doc, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile reads a document, picking the format from the extension.
func ReadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening document: %w", err)
	}
	defer f.Close()
	return Decode(f, FormatFromPath(path))
}

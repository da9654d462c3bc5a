package cli

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/tansive/apiaccess/internal/config"
	"gopkg.in/yaml.v3"
)

// ReadDocumentsFile reads a file holding one or more YAML (or JSON)
// documents. {{ .ENV.NAME }} references are expanded first.
func ReadDocumentsFile(filename string) ([]map[string]any, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read file")
	}
	data, err = config.Preprocess(replaceTabsWithSpaces(data))
	if err != nil {
		return nil, err
	}
	return ReadDocuments(data)
}

// ReadDocuments parses data holding multiple YAML documents. Empty
// documents are skipped.
func ReadDocuments(data []byte) ([]map[string]any, error) {
	content := strings.TrimSpace(string(data))
	if len(content) == 0 || strings.Trim(content, "- \n\t") == "" {
		return []map[string]any{}, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var result []map[string]any
	for {
		var doc map[string]any
		if err := decoder.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, errors.Wrap(err, "failed to decode YAML")
		}
		if len(doc) > 0 {
			result = append(result, doc)
		}
	}
	return result, nil
}

// readValue parses a flag value holding a single YAML or JSON document, or
// "@path" naming a file that holds one.
func readValue(arg string) (any, error) {
	data := []byte(arg)
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", path)
		}
		if data, err = config.Preprocess(replaceTabsWithSpaces(data)); err != nil {
			return nil, err
		}
	}
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, errors.Wrap(err, "invalid document")
	}
	return v, nil
}

func replaceTabsWithSpaces(data []byte) []byte {
	return bytes.ReplaceAll(data, []byte("\t"), []byte("  "))
}

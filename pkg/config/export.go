package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var nonIdentifierChars = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// SanitizeLogicalID derives a logical id from a display title.
func SanitizeLogicalID(title string) string {
	id := nonIdentifierChars.ReplaceAllString(strings.ToLower(title), "_")
	id = strings.Trim(id, "_")
	if id != "" && id[0] >= '0' && id[0] <= '9' {
		id = "space_" + id
	}
	if id == "" {
		return "imported_space"
	}
	return id
}

// MarshalSpaces renders spaces as a YAML document with a spaces list.
func MarshalSpaces(spaces ...*SpaceConfig) ([]byte, error) {
	doc := struct {
		Spaces []*SpaceConfig `yaml:"spaces"`
	}{Spaces: spaces}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode spaces: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteSpaceFile writes cfg to dir/<logical_id>.yaml. Existing files are
// only replaced when overwrite is set.
func WriteSpaceFile(dir string, cfg *SpaceConfig, overwrite bool) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	path := filepath.Join(dir, cfg.LogicalID+".yaml")
	if _, err := os.Stat(path); err == nil && !overwrite {
		return "", fmt.Errorf("config file %s already exists", path)
	}

	data, err := MarshalSpaces(cfg)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// Package task loads the task descriptor that names the application under test
// and the user journeys to verify.
package task

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMalformedInput is returned when a descriptor cannot be read or parsed.
var ErrMalformedInput = errors.New("malformed task descriptor")

// Descriptor is the parsed input to a verification run. Nil fields were absent
// from the source document; an empty slice was present but empty.
type Descriptor struct {
	AppPrompt    *string  `json:"appPrompt,omitempty" yaml:"appPrompt,omitempty"`
	UserJourneys []string `json:"userJourneys,omitempty" yaml:"userJourneys,omitempty"`
}

// Journeys returns the user journeys, or nil when absent.
func (d Descriptor) Journeys() []string {
	return d.UserJourneys
}

// Load reads the descriptor at path. JSON is the canonical format; files with
// a .yaml or .yml extension are decoded as YAML with the same field names.
func Load(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: read %s: %v", ErrMalformedInput, path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return Parse(data)
	}
}

// Parse decodes a JSON descriptor.
func Parse(data []byte) (Descriptor, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if raw == nil {
		return Descriptor{}, fmt.Errorf("%w: top-level value must be an object", ErrMalformedInput)
	}

	var d Descriptor
	if v, ok := raw["appPrompt"]; ok && !isNull(v) {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return Descriptor{}, fmt.Errorf("%w: appPrompt: %v", ErrMalformedInput, err)
		}
		d.AppPrompt = &s
	}
	if v, ok := raw["userJourneys"]; ok && !isNull(v) {
		journeys := []string{}
		if err := json.Unmarshal(v, &journeys); err != nil {
			return Descriptor{}, fmt.Errorf("%w: userJourneys: %v", ErrMalformedInput, err)
		}
		d.UserJourneys = journeys
	}
	return d, nil
}

// ParseYAML decodes a YAML descriptor.
func ParseYAML(data []byte) (Descriptor, error) {
	var node struct {
		AppPrompt    *string   `yaml:"appPrompt"`
		UserJourneys *[]string `yaml:"userJourneys"`
	}
	if err := yaml.Unmarshal(data, &node); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	d := Descriptor{AppPrompt: node.AppPrompt}
	if node.UserJourneys != nil {
		d.UserJourneys = append([]string{}, (*node.UserJourneys)...)
	}
	return d, nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

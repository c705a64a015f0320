package task

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		file         string
		content      string
		wantPrompt   *string
		wantJourneys []string
		wantErr      bool
	}{
		{
			name:         "full json",
			file:         "task.json",
			content:      `{"appPrompt":"A todo app","userJourneys":["Add a todo","Delete a todo"]}`,
			wantPrompt:   ptr("A todo app"),
			wantJourneys: []string{"Add a todo", "Delete a todo"},
		},
		{
			name:    "empty object",
			file:    "task.json",
			content: `{}`,
		},
		{
			name:         "empty journeys kept",
			file:         "task.json",
			content:      `{"userJourneys":[]}`,
			wantJourneys: []string{},
		},
		{
			name:    "null fields treated as absent",
			file:    "task.json",
			content: `{"appPrompt":null,"userJourneys":null}`,
		},
		{
			name:       "unknown keys ignored",
			file:       "task.json",
			content:    `{"appPrompt":"x","extra":1}`,
			wantPrompt: ptr("x"),
		},
		{
			name:         "yaml",
			file:         "task.yaml",
			content:      "appPrompt: A todo app\nuserJourneys:\n  - Add a todo\n",
			wantPrompt:   ptr("A todo app"),
			wantJourneys: []string{"Add a todo"},
		},
		{name: "invalid json", file: "task.json", content: `{"appPrompt":`, wantErr: true},
		{name: "array root", file: "task.json", content: `[]`, wantErr: true},
		{name: "null root", file: "task.json", content: `null`, wantErr: true},
		{name: "wrong journeys type", file: "task.json", content: `{"userJourneys":"x"}`, wantErr: true},
		{name: "invalid yaml", file: "task.yml", content: "userJourneys: [", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, err := Load(writeFile(t, tt.file, tt.content))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPrompt, d.AppPrompt)
			assert.Equal(t, tt.wantJourneys, d.Journeys())
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func ptr(s string) *string { return &s }

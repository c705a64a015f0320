package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/evalrunner/internal/evidence"
	"github.com/metalagman/evalrunner/internal/task"
)

func strPtr(s string) *string { return &s }

func TestCompose(t *testing.T) {
	t.Parallel()

	d := task.Descriptor{
		AppPrompt:    strPtr("A todo app"),
		UserJourneys: []string{"Add a todo", "Delete a todo"},
	}

	got := Compose("RULES", d, "http://localhost:3000")

	want := "\nRULES\n\n## Task Details\n\n" +
		"Here are the details for your current task:\n\n" +
		"- **Live URL:** http://localhost:3000\n" +
		"- **Original Prompt:**\n```\nA todo app\n```\n" +
		"- **User Journeys to verify:**\n```json\n[\n    \"Add a todo\",\n    \"Delete a todo\"\n]\n```\n"
	assert.Equal(t, want, got)
}

func TestCompose_SectionOrder(t *testing.T) {
	t.Parallel()

	d := task.Descriptor{AppPrompt: strPtr("app"), UserJourneys: []string{"j"}}
	got := Compose("INSTRUCTIONS", d, "http://x")

	idx := []int{
		strings.Index(got, "INSTRUCTIONS"),
		strings.Index(got, "**Live URL:**"),
		strings.Index(got, "**Original Prompt:**"),
		strings.Index(got, "**User Journeys to verify:**"),
	}
	for i := 1; i < len(idx); i++ {
		assert.Greater(t, idx[i], idx[i-1])
	}
}

func TestCompose_OmitsAbsentSections(t *testing.T) {
	t.Parallel()

	got := Compose("I", task.Descriptor{}, "http://x")
	assert.NotContains(t, got, "Original Prompt")
	assert.NotContains(t, got, "User Journeys")
	assert.Contains(t, got, "- **Live URL:** http://x")

	got = Compose("I", task.Descriptor{UserJourneys: []string{}}, "http://x")
	assert.Contains(t, got, "```json\n[]\n```")
}

func TestCompose_Verbatim(t *testing.T) {
	t.Parallel()

	d := task.Descriptor{
		AppPrompt:    strPtr("<b>Shop</b> & \"cart\""),
		UserJourneys: []string{"Click <Buy> & pay"},
	}
	got := Compose("I", d, "http://x")
	assert.Contains(t, got, "<b>Shop</b> & \"cart\"")
	assert.Contains(t, got, `"Click <Buy> & pay"`)
}

func TestCompose_Idempotent(t *testing.T) {
	t.Parallel()

	d := task.Descriptor{AppPrompt: strPtr("A todo app"), UserJourneys: []string{"Add a todo"}}
	base := DefaultInstructions()

	assert.Equal(t, Compose(base, d, "http://x"), Compose(base, d, "http://x"))
}

func TestDefaultInstructions_Conforms(t *testing.T) {
	t.Parallel()

	doc := DefaultInstructions()
	assert.Empty(t, CheckConformance(doc))
	assert.Contains(t, doc, evidence.ActionName)
	assert.Contains(t, doc, `"qualityEvaluation"`)
	assert.NotContains(t, doc, "{{")
}

func TestCheckConformance_ReportsMissing(t *testing.T) {
	t.Parallel()

	missing := CheckConformance("only analysis and journey here")
	assert.Contains(t, missing, "qualityEvaluation")
	assert.Contains(t, missing, evidence.ActionName)
	assert.NotContains(t, missing, "analysis")
}

func TestLoadInstructions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	plain := filepath.Join(dir, "plain.md")
	require.NoError(t, os.WriteFile(plain, []byte("be careful"), 0o600))
	doc, err := LoadInstructions(plain)
	require.NoError(t, err)
	assert.Equal(t, "be careful", doc)

	for _, body := range []string{
		"Check the counter renders {{ count }} after clicking.",
		"{{#each todos}}<li>{{this}}</li>{{/each}}",
		"use {{ .EvidenceAction }}",
	} {
		path := filepath.Join(dir, "braces.md")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		doc, err = LoadInstructions(path)
		require.NoError(t, err)
		assert.Equal(t, body, doc)
	}

	_, err = LoadInstructions(filepath.Join(dir, "missing.md"))
	require.Error(t, err)
}

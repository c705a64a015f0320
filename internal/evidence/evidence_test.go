package evidence

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/evalrunner/internal/action"
	"github.com/metalagman/evalrunner/internal/browser"
	"github.com/metalagman/evalrunner/internal/result"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake")

func TestInvoke_ReturnsRecord(t *testing.T) {
	t.Parallel()

	page := &browser.FakePage{Image: pngBytes}
	store := NewStore("")
	reg := action.NewRegistry()
	require.NoError(t, New(page, store).Register(reg))

	res, err := reg.Invoke(context.Background(), ActionName,
		json.RawMessage(`{"expectation":"button visible","actual":"button missing","description":"Checkout flow"}`))
	require.NoError(t, err)

	rec, ok := res.Value.(Record)
	require.True(t, ok)
	assert.Equal(t, "button visible", rec.Expectation)
	assert.Equal(t, "button missing", rec.Actual)
	assert.Equal(t, "Checkout flow", rec.Description)
	assert.NotEmpty(t, rec.Base64Screenshot)
	assert.Equal(t, base64.StdEncoding.EncodeToString(pngBytes), rec.Base64Screenshot)
	assert.Equal(t, "evidence-1", rec.ID)

	assert.True(t, res.IncludeInMemory)
	assert.Contains(t, res.Content, "evidence-1")
	assert.NotContains(t, res.Content, rec.Base64Screenshot)

	require.Len(t, page.Screenshots, 1)
	assert.Equal(t, browser.ScreenshotOptions{FullPage: true, DisableAnimations: true, Format: browser.PNG}, page.Screenshots[0])
	assert.Equal(t, []string{"screenshot"}, page.Calls)
}

func TestDefinition(t *testing.T) {
	t.Parallel()

	def := New(&browser.FakePage{}, NewStore("")).Definition()
	assert.Equal(t, "Take User Journey failure screenshot", def.Name)
	assert.Equal(t, action.ReadOnly, def.SideEffect)

	reg := action.NewRegistry()
	require.NoError(t, reg.Register(def))
	_, err := reg.Invoke(context.Background(), ActionName, json.RawMessage(`{"expectation":"x"}`))
	assert.ErrorIs(t, err, action.ErrInvalidInput)
}

func TestInvoke_CaptureErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("target closed")
	page := &browser.FakePage{Err: boom}
	store := NewStore("")
	a := New(page, store)

	_, err := a.Capture(context.Background(), Request{Expectation: "e", Actual: "a", Description: "d"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, page.Calls, 1)
	assert.Empty(t, store.Records())
}

func TestStore_SequentialIDsAndFiles(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "evidence")
	a := New(&browser.FakePage{Image: pngBytes}, NewStore(dir))

	for i := 0; i < 3; i++ {
		_, err := a.Capture(context.Background(), Request{Description: "d"})
		require.NoError(t, err)
	}

	ids := make([]string, 0, 3)
	for _, r := range a.store.Records() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"evidence-1", "evidence-2", "evidence-3"}, ids)

	data, err := os.ReadFile(filepath.Join(dir, "evidence-2.png"))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
}

func TestStore_Resolve(t *testing.T) {
	t.Parallel()

	store := NewStore("")
	rec, err := store.Add(Record{Base64Screenshot: "QUJD"}, nil)
	require.NoError(t, err)

	in := result.AgentOutput{Analysis: []result.UserJourneyAnalysis{
		{Journey: "ok", Passing: true},
		{Journey: "bad", Failure: &result.Failure{Step: 1, Screenshot: rec.ID}},
		{Journey: "other", Failure: &result.Failure{Step: 2, Screenshot: "not-an-id"}},
	}}

	out := store.Resolve(in)
	assert.Nil(t, out.Analysis[0].Failure)
	assert.Equal(t, "QUJD", out.Analysis[1].Failure.Screenshot)
	assert.Equal(t, "not-an-id", out.Analysis[2].Failure.Screenshot)
	// Input is not mutated.
	assert.Equal(t, rec.ID, in.Analysis[1].Failure.Screenshot)
	assert.False(t, strings.HasPrefix(in.Analysis[1].Failure.Screenshot, "QUJD"))
}

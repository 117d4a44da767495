package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specbook-dev/specbook/internal/models"
)

func TestParseWithFrontmatter(t *testing.T) {
	res := Parse([]byte("---\nstatus: draft\ntitle: User Auth\n---\n\n# Ignored\n\nBody text.\n"))

	assert.Equal(t, models.StatusDraft, res.Status)
	assert.Equal(t, "User Auth", res.Title)
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, "# Ignored\n\nBody text.\n", res.Body)
	require.NotNil(t, res.Frontmatter)
	assert.Equal(t, "draft", res.Frontmatter["status"])
}

func TestParseNoFrontmatter(t *testing.T) {
	res := Parse([]byte("# Payments\n\nJust markdown.\n"))

	assert.Equal(t, models.StatusUnknown, res.Status)
	assert.Equal(t, "Payments", res.Title)
	assert.Nil(t, res.Frontmatter)
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, "# Payments\n\nJust markdown.\n", res.Body)
}

func TestParseStatusNormalization(t *testing.T) {
	res := Parse([]byte("---\nstatus: In_Review\n---\nbody\n"))
	assert.Equal(t, models.StatusInReview, res.Status)
	assert.Empty(t, res.Diagnostics)
}

func TestParseUnrecognizedStatus(t *testing.T) {
	res := Parse([]byte("---\nstatus: shipped\n---\nbody\n"))

	assert.Equal(t, models.StatusUnknown, res.Status)
	require.Len(t, res.Diagnostics, 1)
	assert.Contains(t, res.Diagnostics[0], "shipped")
}

func TestParseMissingClosingDelimiter(t *testing.T) {
	input := "---\nstatus: draft\n\n# Heading\nbody without closing fence\n"
	res := Parse([]byte(input))

	// The document stays readable: whole input becomes the body.
	assert.Equal(t, models.StatusUnknown, res.Status)
	assert.Equal(t, input, res.Body)
	require.Len(t, res.Diagnostics, 1)
	assert.Contains(t, res.Diagnostics[0], "closing delimiter")
	assert.Equal(t, "Heading", res.Title)
}

func TestParseHorizontalRuleIsNotFrontmatter(t *testing.T) {
	input := "----\n\nA document opening with a horizontal rule.\n"
	res := Parse([]byte(input))

	assert.Nil(t, res.Frontmatter)
	assert.Equal(t, models.StatusUnknown, res.Status)
	assert.Equal(t, input, res.Body)
	assert.Empty(t, res.Diagnostics)
}

func TestParseLongerDashLineDoesNotClose(t *testing.T) {
	// Only an exact --- line closes the block; ----/---x lines do not.
	input := "---\nstatus: draft\n----\nbody after a near-miss fence\n"
	res := Parse([]byte(input))

	assert.Equal(t, models.StatusUnknown, res.Status)
	assert.Equal(t, input, res.Body)
	require.Len(t, res.Diagnostics, 1)
	assert.Contains(t, res.Diagnostics[0], "closing delimiter")
}

func TestParseCRLFDelimiters(t *testing.T) {
	res := Parse([]byte("---\r\nstatus: draft\r\n---\r\n# Title\r\n"))

	assert.Equal(t, models.StatusDraft, res.Status)
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, "Title", res.Title)
}

func TestParseInvalidYAML(t *testing.T) {
	input := "---\nstatus: [unclosed\n---\n# Still Here\n"
	res := Parse([]byte(input))

	assert.Equal(t, models.StatusUnknown, res.Status)
	assert.Equal(t, input, res.Body)
	require.NotEmpty(t, res.Diagnostics)
	assert.Contains(t, res.Diagnostics[0], "invalid frontmatter YAML")
}

func TestParseNonStringStatus(t *testing.T) {
	res := Parse([]byte("---\nstatus: 42\n---\nbody\n"))
	assert.Equal(t, models.StatusUnknown, res.Status)
	require.Len(t, res.Diagnostics, 1)
}

func TestParseTitleFallsBackToH1(t *testing.T) {
	res := Parse([]byte("---\nstatus: approved\n---\n\nintro line\n\n# The Real Title\n"))
	assert.Equal(t, "The Real Title", res.Title)
}

func TestParseEmptyInput(t *testing.T) {
	res := Parse(nil)
	assert.Equal(t, models.StatusUnknown, res.Status)
	assert.Empty(t, res.Title)
	assert.Empty(t, res.Diagnostics)
}

func TestCountTasks(t *testing.T) {
	data := []byte(`# Tasks

- [x] done one
- [X] done two
- [ ] open one
- [ ] open two
- [ ] open three
- not a task
`)
	c := CountTasks(data)
	assert.Equal(t, 5, c.TotalTasks)
	assert.Equal(t, 2, c.CompletedTasks)
	assert.False(t, c.IsComplete())
}

func TestCountTasksEmpty(t *testing.T) {
	c := CountTasks([]byte("no checkboxes here"))
	assert.Equal(t, 0, c.TotalTasks)
	assert.Equal(t, 0, c.CompletedTasks)
}

package acebot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderMarkdown(t *testing.T) {
	assert.Equal(
		t,
		"some **bold** text",
		renderMarkdown("<p>some <strong>bold</strong> text</p>"),
	)
	assert.Equal(t, "plain text", renderMarkdown("plain text"))
}

func TestRenderFeedBody(t *testing.T) {
	t.Run("strips code markers", func(t *testing.T) {
		body := renderFeedBody("<p>CODE: see below</p>")
		assert.Equal(t, "see below", body)
	})

	t.Run("collapses blank line runs", func(t *testing.T) {
		body := renderFeedBody("<p>first</p><br/><br/><br/><p>second</p>")
		assert.NotContains(t, body, "\n\n\n")
		assert.Contains(t, body, "first")
		assert.Contains(t, body, "second")
	})

	t.Run("caps length with a truncation suffix", func(t *testing.T) {
		body := renderFeedBody("<p>" + strings.Repeat("word ", 1000) + "</p>")
		assert.LessOrEqual(t, len([]rune(body)), feedDescriptionMaxLength)
		assert.True(t, strings.HasSuffix(body, truncationSuffix))
	})
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `a \* b \_ c`, escapeMarkdown("a * b _ c"))
	assert.Equal(t, "\\`code\\`", escapeMarkdown("`code`"))
	assert.Equal(t, "no specials", escapeMarkdown("no specials"))
}

func TestTruncateContent(t *testing.T) {
	assert.Equal(t, "short", truncateContent("short", 100))

	long := strings.Repeat("x", 200)
	truncated := truncateContent(long, 100)
	assert.LessOrEqual(t, len([]rune(truncated)), 100)
	assert.True(t, strings.HasSuffix(truncated, truncationSuffix))

	// a limit smaller than the suffix truncates without one
	tiny := truncateContent(long, 5)
	assert.Equal(t, "xxxxx", tiny)
}

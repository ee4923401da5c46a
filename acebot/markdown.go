package acebot

import (
	"regexp"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const (
	// feedDescriptionMaxLength caps rendered feed bodies and docs
	// descriptions, below the embed description limit with room for the
	// truncation suffix.
	feedDescriptionMaxLength = 2000

	truncationSuffix = "\n\n**(output limit reached)**"
)

var (
	blankLineRuns    = regexp.MustCompile(`\n\n+`)
	codeFenceRuns    = regexp.MustCompile("\n```\n+")
	markdownSpecials = strings.NewReplacer(
		`\`, `\\`,
		"*", `\*`,
		"_", `\_`,
		"`", "\\`",
		"~", `\~`,
		"|", `\|`,
	)
)

// renderMarkdown converts an HTML snippet to Discord-flavored markdown.
// Conversion failures fall back to the escaped raw text rather than
// dropping content.
func renderMarkdown(htmlContent string) string {
	md, err := htmltomarkdown.ConvertString(htmlContent)
	if err != nil {
		return escapeMarkdown(htmlContent)
	}
	return strings.TrimSpace(md)
}

// renderFeedBody converts a forum feed entry body to Discord markdown:
// HTML conversion, "CODE: " marker removal, blank-line collapsing, code
// fence normalization, and a length cap.
func renderFeedBody(htmlContent string) string {
	content := renderMarkdown(htmlContent)
	content = strings.ReplaceAll(content, "CODE: ", "")
	content = blankLineRuns.ReplaceAllString(content, "\n\n")
	content = codeFenceRuns.ReplaceAllString(content, "\n```\n")
	return truncateContent(content, feedDescriptionMaxLength)
}

// escapeMarkdown escapes Discord markdown control characters in plain text.
func escapeMarkdown(s string) string {
	return markdownSpecials.Replace(s)
}

// truncateContent shortens s to at most limit runes, appending a suffix
// noting the truncation. Content is truncated rather than rejected.
func truncateContent(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	suffix := []rune(truncationSuffix)
	if limit <= len(suffix) {
		return strings.TrimSpace(string(runes[:limit]))
	}
	return strings.TrimSpace(string(runes[:limit-len(suffix)])) + truncationSuffix
}

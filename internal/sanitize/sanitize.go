// Package sanitize cleans knowledge-base text before the MCP server places it
// in an agent's context. Knowledge bases are user-authored YAML, so names,
// reasons and notes may carry markup that would read as instructions once
// rendered as markdown.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxTextLength is the maximum length of free text such as rejection reasons.
const MaxTextLength = 500

// MaxIdentifierLength is the maximum length of names, paths and type refs.
const MaxIdentifierLength = 80

var (
	// reXMLTag matches XML/HTML tags including attributes, self-closing tags
	// and processing instructions.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	// reMarkdownHeading matches markdown headings at the start of a line.
	reMarkdownHeading = regexp.MustCompile(`(?m)^#{1,6}\s+`)

	// reHorizontalRule matches a line holding only ---, *** or ___.
	reHorizontalRule = regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)

	reTripleBacktick = regexp.MustCompile("```+")

	reExcessiveNewlines = regexp.MustCompile(`\n{3,}`)

	reRepeatedSeparators = regexp.MustCompile(`([-_.])[-_.]+`)
)

// Text cleans free text: control characters, tags, headings, rules and code
// fences are removed, blank-line runs collapse, and the result is truncated
// to MaxTextLength.
func Text(input string) string {
	if input == "" {
		return ""
	}

	s := stripControlChars(input)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reMarkdownHeading.ReplaceAllString(s, "- ")
	s = reHorizontalRule.ReplaceAllString(s, "")
	s = reTripleBacktick.ReplaceAllString(s, "`")
	s = reExcessiveNewlines.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)

	if len(s) > MaxTextLength {
		s = s[:MaxTextLength] + "..."
	}
	return s
}

// Identifier keeps the characters a knowledge-base identifier may use
// ([a-zA-Z0-9-_./@]), collapses repeated separators and truncates to
// MaxIdentifierLength. "battery.level" and "flashlight@1" pass unchanged.
func Identifier(input string) string {
	if input == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' || r == '/' || r == '@' {
			b.WriteRune(r)
		}
	}
	s := reRepeatedSeparators.ReplaceAllString(b.String(), "$1")

	if len(s) > MaxIdentifierLength {
		s = s[:MaxIdentifierLength]
	}
	return s
}

// stripControlChars removes ASCII control characters except newline and tab.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

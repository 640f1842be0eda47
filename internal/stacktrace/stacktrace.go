// Package stacktrace extracts normalized failure traces and display titles
// from auto-reported issue bodies, and recognizes "Duplicate of #N" comments.
package stacktrace

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultFramePrefix selects the stack frames that belong to the plugin
	DefaultFramePrefix = "\tat com.demonwav.mcdev"

	// DefaultPlaceholderTitle is the title the reporter files every issue with
	DefaultPlaceholderTitle = "[auto-generated] Exception in plugin"

	// MaxTitleLength is the longest title pushed to the tracker, in characters
	MaxTitleLength = 255

	fence = "\n```\n"
)

var (
	digitsRegex    = regexp.MustCompile(`\d+`)
	lineBreakRegex = regexp.MustCompile(`[\r\n]+`)
	duplicateRegex = regexp.MustCompile(`(?i)^\s*duplicate of\s+#(\d+)\s*$`)
)

// Extractor normalizes traces and titles for one reporter format
type Extractor struct {
	FramePrefix      string
	PlaceholderTitle string
}

// NewExtractor returns an Extractor, filling empty settings with defaults
func NewExtractor(framePrefix, placeholderTitle string) *Extractor {
	if framePrefix == "" {
		framePrefix = DefaultFramePrefix
	}
	if placeholderTitle == "" {
		placeholderTitle = DefaultPlaceholderTitle
	}
	return &Extractor{
		FramePrefix:      framePrefix,
		PlaceholderTitle: placeholderTitle,
	}
}

// Lines returns the normalized trace found between the first two code fences
// of body. Digit runs are removed so line numbers don't split fingerprints,
// only frames starting with the frame prefix are kept, and each kept frame is
// trimmed and stripped of its "at " prefix.
//
// ok is false when the body has no fenced block or the block has no matching
// frame; such issues are not tracked.
func (x *Extractor) Lines(body string) (lines []string, ok bool) {
	start := strings.Index(body, fence)
	if start < 0 {
		return nil, false
	}
	start += len(fence)
	end := strings.Index(body[start:], fence)
	if end < 0 {
		return nil, false
	}

	block := body[start : start+end]
	block = digitsRegex.ReplaceAllString(block, "")
	block = lineBreakRegex.ReplaceAllString(block, "\n")

	for _, line := range strings.Split(block, "\n") {
		if !strings.HasPrefix(line, x.FramePrefix) {
			continue
		}
		line = strings.TrimSpace(line)
		lines = append(lines, strings.TrimPrefix(line, "at "))
	}
	if len(lines) == 0 {
		return nil, false
	}
	return lines, true
}

// Title derives the display title for an issue. Titles that were already
// changed away from the placeholder are returned unchanged. Otherwise the
// first line after the opening code fence is used (the exception message),
// truncated to MaxTitleLength characters.
func (x *Extractor) Title(title, body string) string {
	if title != x.PlaceholderTitle {
		return title
	}

	derived := body
	if _, after, found := strings.Cut(body, fence); found {
		derived = after
	}
	derived, _, _ = strings.Cut(derived, "\n")

	if derived == "" {
		return x.PlaceholderTitle
	}
	if utf8.RuneCountInString(derived) > MaxTitleLength {
		runes := []rune(derived)
		derived = string(runes[:MaxTitleLength-3]) + "..."
	}
	return derived
}

// ParseDuplicateOf reports the issue number referenced by a comment that
// consists solely of "Duplicate of #N" (case-insensitive).
func ParseDuplicateOf(comment string) (int, bool) {
	match := duplicateRegex.FindStringSubmatch(comment)
	if match == nil {
		return 0, false
	}
	num, err := strconv.Atoi(match[1])
	if err != nil || num <= 0 {
		return 0, false
	}
	return num, true
}

// DuplicateNotice is the comment posted when closing a duplicate
func DuplicateNotice(canonicalID int) string {
	return "Duplicate of #" + strconv.Itoa(canonicalID)
}

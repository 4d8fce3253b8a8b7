// Package display provides terminal and markdown output for music.
package display

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/clitic/music/internal/aggregator"
)

const separator = " • "

// titleWidth caps titles in terminal output.
const titleWidth = 80

// TerminalFormatter formats catalogs for terminal display.
type TerminalFormatter struct{}

// NewTerminalFormatter creates a new terminal formatter.
func NewTerminalFormatter() *TerminalFormatter {
	return &TerminalFormatter{}
}

// FormatRecord formats a single ranked video for display.
func (f *TerminalFormatter) FormatRecord(rank int, v aggregator.VideoRecord) string {
	var lines []string

	// Header: #rank Title
	lines = append(lines, fmt.Sprintf("#%d %s", rank, f.TruncateText(v.Title, titleWidth)))

	lines = append(lines, "  "+f.formatStats(v))

	lines = append(lines, "  "+v.URL())

	return strings.Join(lines, "\n") + "\n"
}

// formatStats formats counters and trend score into a single line.
func (f *TerminalFormatter) formatStats(v aggregator.VideoRecord) string {
	parts := []string{
		Compact(v.ViewCount) + " views",
		Compact(v.LikeCount) + " likes",
		pluralize(v.CommentCount, "comment"),
	}
	if v.TrendScore != nil {
		parts = append(parts, "trending in "+FormatScore(*v.TrendScore)+" of regions")
	}
	return strings.Join(parts, separator)
}

// FormatCatalog formats ranked videos for display.
func (f *TerminalFormatter) FormatCatalog(records []aggregator.VideoRecord) string {
	if len(records) == 0 {
		return "No videos to display.\n"
	}

	formatted := make([]string, 0, len(records))
	for i, v := range records {
		formatted = append(formatted, f.FormatRecord(i+1, v))
	}

	return strings.Join(formatted, "\n")
}

// Compact renders a count the short way: 999, 1.2k, 3.4M, 5B.
func Compact(n uint64) string {
	if n < 1000 {
		return strconv.FormatUint(n, 10)
	}
	value, prefix := humanize.ComputeSI(float64(n))
	s := humanize.FtoaWithDigits(value, 1)
	if f, _ := strconv.ParseFloat(s, 64); f >= 1000 {
		// Formatting rounded up into the next prefix.
		value, prefix = value/1000, nextSIPrefix[prefix]
		s = humanize.FtoaWithDigits(value, 1)
	}
	if prefix == "G" {
		prefix = "B"
	}
	return s + prefix
}

var nextSIPrefix = map[string]string{"k": "M", "M": "G", "G": "T", "T": "P", "P": "E"}

// FormatScore renders a trend score percentage.
func FormatScore(score float64) string {
	return humanize.FtoaWithDigits(score, 1) + "%"
}

// pluralize returns "N unit" or "N units" based on count, with thousands
// separators.
func pluralize(n uint64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return humanize.Comma(int64(n)) + " " + unit + "s"
}

// TruncateText truncates text to maxLen runes, adding "..." if truncated.
func (f *TerminalFormatter) TruncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(runes[:maxLen-3]) + "..."
}

// Package aggregator merges per-region trending lists into one deduplicated
// catalog of music videos.
//
// This package enables music to:
// - Count how many regions each video trends in (frequency mode)
// - Collect the plain union of trending videos (set mode)
// - Rank, threshold and diff catalogs between runs
package aggregator

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode selects how duplicates across regions are treated.
type Mode string

const (
	ModeFrequency Mode = "frequency"
	ModeSet       Mode = "set"
)

// UnknownTitle replaces titles the API omits or leaves empty.
const UnknownTitle = "Unknown Title"

// DefaultMinRegions is the minimum number of regions a video must trend in
// to be kept in frequency mode.
const DefaultMinRegions = 2

// ParseMode converts a user-supplied mode name. Empty selects frequency.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeFrequency:
		return ModeFrequency, nil
	case ModeSet:
		return ModeSet, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want %q or %q)", s, ModeFrequency, ModeSet)
	}
}

// Entry is one raw item of a region's trending list. Counts are kept as the
// decimal strings the API returns.
type Entry struct {
	ID           string
	Title        string
	ViewCount    string
	LikeCount    string
	CommentCount string
}

// VideoRecord is one catalog row. TrendScore holds the raw appearance count
// while aggregating and the normalized percentage after a Policy is applied.
// It is nil in set mode.
type VideoRecord struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	ViewCount    uint64   `json:"view_count"`
	LikeCount    uint64   `json:"like_count"`
	CommentCount uint64   `json:"comment_count"`
	TrendScore   *float64 `json:"frequency,omitempty"`
}

// URL returns the public watch link for the video.
func (v VideoRecord) URL() string {
	return "https://www.youtube.com/watch?v=" + v.ID
}

// Score returns the trend score, or 0 when none is set.
func (v VideoRecord) Score() float64 {
	if v.TrendScore == nil {
		return 0
	}
	return *v.TrendScore
}

// ParseCount reads a decimal statistic. Missing, negative or non-numeric
// values count as zero.
func ParseCount(s string) uint64 {
	n, _ := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	return n
}

// NewRecord builds a record from a raw entry.
func NewRecord(e Entry) VideoRecord {
	title := e.Title
	if strings.TrimSpace(title) == "" {
		title = UnknownTitle
	}
	return VideoRecord{
		ID:           e.ID,
		Title:        title,
		ViewCount:    ParseCount(e.ViewCount),
		LikeCount:    ParseCount(e.LikeCount),
		CommentCount: ParseCount(e.CommentCount),
	}
}

func scorePtr(v float64) *float64 {
	return &v
}

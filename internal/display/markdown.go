package display

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/clitic/music/internal/aggregator"
)

// MarkdownReport renders a run as a markdown page suitable for a static
// site.
type MarkdownReport struct {
	Mode        aggregator.Mode
	Top         int
	GeneratedAt time.Time
}

// Render returns the report for the ranked catalog and the videos new since
// the previous run. newVideos is nil when no previous snapshot existed.
func (r MarkdownReport) Render(catalog, newVideos []aggregator.VideoRecord) string {
	var b strings.Builder

	b.WriteString("# Current Music Trends\n\n")
	fmt.Fprintf(&b, "Generated %s%s%d videos%smode %s\n",
		r.GeneratedAt.UTC().Format("02/01/2006 @ 03:04 PM UTC"), separator, len(catalog), separator, r.Mode)

	if top := r.top(catalog); len(top) > 0 {
		fmt.Fprintf(&b, "\n## Top %d\n\n", len(top))
		for i, v := range top {
			fmt.Fprintf(&b, "%d. %s @ %s\n", i+1, link(v), r.headline(v))
		}
	}

	if newVideos != nil {
		b.WriteString("\n## Newly Trending\n\n")
		if len(newVideos) == 0 {
			b.WriteString("Nothing new since the previous run.\n")
		}
		for i, v := range newVideos {
			fmt.Fprintf(&b, "%d. %s @ %s views\n", i+1, link(v), Compact(v.ViewCount))
		}
	}

	b.WriteString("\n## All Videos\n\n")
	if len(catalog) == 0 {
		b.WriteString("No videos to display.\n")
	}
	for i, v := range catalog {
		fmt.Fprintf(&b, "%d. %s @ %s views\n", i+1, link(v), Compact(v.ViewCount))
	}

	return b.String()
}

// top picks the Top entries: by trend score in frequency mode, by views
// otherwise. Ties keep catalog order.
func (r MarkdownReport) top(catalog []aggregator.VideoRecord) []aggregator.VideoRecord {
	n := r.Top
	if n <= 0 {
		return nil
	}
	ranked := make([]aggregator.VideoRecord, len(catalog))
	copy(ranked, catalog)
	if r.Mode == aggregator.ModeFrequency {
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].Score() > ranked[j].Score()
		})
	}
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func (r MarkdownReport) headline(v aggregator.VideoRecord) string {
	if r.Mode == aggregator.ModeFrequency && v.TrendScore != nil {
		return FormatScore(*v.TrendScore) + " of regions"
	}
	return Compact(v.ViewCount) + " views"
}

func link(v aggregator.VideoRecord) string {
	return fmt.Sprintf(`<a href="%s" target="_blank">%s</a>`, v.URL(), html.EscapeString(v.Title))
}

// WriteReport writes content to path, creating parent directories.
func WriteReport(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

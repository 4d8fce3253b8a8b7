package main

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"
)

// progress prints one line per fetched region and logs stage timings.
type progress struct {
	w      io.Writer
	logger *slog.Logger
}

func (p *progress) OnStart(runID string, regions int) {
	fmt.Fprintf(p.w, "Surveying %d regions (run %s)\n", regions, runID)
}

func (p *progress) OnRegionDone(idx, total int, region string, entries int, err error, dur time.Duration) {
	width := len(strconv.Itoa(total))
	fmt.Fprintf(p.w, "[%*d/%d] fetching trending music (%s)", width, idx, total, region)
	if err != nil {
		fmt.Fprintf(p.w, " failed: %v\n", err)
		return
	}
	fmt.Fprintf(p.w, " %d videos in %s\n", entries, dur.Round(time.Millisecond))
}

func (p *progress) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	attrs := make([]any, 0, 2*len(fields)+4)
	attrs = append(attrs, "phase", name, "took", dur.Round(time.Millisecond))
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	p.logger.Debug("phase done", attrs...)
}

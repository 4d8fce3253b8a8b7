package pipeline

import "time"

// Observer receives progress events from a run. Events are delivered from
// the goroutine that called Run, one at a time.
type Observer interface {
	// OnStart is called once the region list is known.
	OnStart(runID string, regions int)
	// OnRegionDone is called as each region fetch completes, in completion
	// order. err is nil on success.
	OnRegionDone(idx, total int, region string, entries int, err error, dur time.Duration)
	// OnPhaseDone is called when a stage finishes.
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
}

type nopObserver struct{}

func (nopObserver) OnStart(string, int) {}
func (nopObserver) OnRegionDone(int, int, string, int, error, time.Duration) {}
func (nopObserver) OnPhaseDone(string, map[string]any, time.Duration) {}

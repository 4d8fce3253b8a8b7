package aggregator

// Policy decides which catalog records are kept and how they are ranked.
type Policy struct {
	Mode Mode
	// MinRegions is the minimum appearance count kept in frequency mode.
	// Zero or less selects DefaultMinRegions.
	MinRegions int
	// Limit caps the result size. Zero keeps everything.
	Limit int
}

// Apply returns the ranked records of c. In frequency mode records seen in
// fewer than MinRegions regions are dropped and the appearance count becomes
// the percentage of surveyed regions, capped at 100. In set mode every record
// is kept without a score. The result is sorted by view count descending and
// c is not modified.
func (p Policy) Apply(c *Catalog, regionsSurveyed int) []VideoRecord {
	records := c.Records()
	out := make([]VideoRecord, 0, len(records))

	if p.Mode == ModeSet {
		for _, r := range records {
			r.TrendScore = nil
			out = append(out, r)
		}
	} else {
		if regionsSurveyed <= 0 {
			return out
		}
		minRegions := p.MinRegions
		if minRegions <= 0 {
			minRegions = DefaultMinRegions
		}
		for _, r := range records {
			count := r.Score()
			if count < float64(minRegions) {
				continue
			}
			pct := count * 100 / float64(regionsSurveyed)
			if pct > 100 {
				pct = 100
			}
			r.TrendScore = scorePtr(pct)
			out = append(out, r)
		}
	}

	SortByViews(out)
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out
}

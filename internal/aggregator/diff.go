package aggregator

// ComputeNew returns the records of current whose id is absent from
// previous, sorted by view count descending. Neither input is modified.
func ComputeNew(previous *Catalog, current []VideoRecord) []VideoRecord {
	out := make([]VideoRecord, 0)
	for _, r := range current {
		if !previous.Has(r.ID) {
			out = append(out, r)
		}
	}
	SortByViews(out)
	return out
}

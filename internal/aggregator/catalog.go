package aggregator

import "sort"

// Catalog is an insertion-ordered set of records keyed by video id.
type Catalog struct {
	records []VideoRecord
	index   map[string]int
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{index: make(map[string]int)}
}

// CatalogFrom builds a catalog from stored records. When an id repeats the
// first occurrence wins.
func CatalogFrom(records []VideoRecord) *Catalog {
	c := NewCatalog()
	for _, r := range records {
		c.add(r)
	}
	return c
}

// Len returns the number of distinct videos.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.records)
}

// Has reports whether id is present.
func (c *Catalog) Has(id string) bool {
	if c == nil {
		return false
	}
	_, ok := c.index[id]
	return ok
}

// Get returns the record for id.
func (c *Catalog) Get(id string) (VideoRecord, bool) {
	if c == nil {
		return VideoRecord{}, false
	}
	i, ok := c.index[id]
	if !ok {
		return VideoRecord{}, false
	}
	return c.records[i], true
}

// Records returns a copy of the records in insertion order.
func (c *Catalog) Records() []VideoRecord {
	if c == nil {
		return []VideoRecord{}
	}
	out := make([]VideoRecord, len(c.records))
	copy(out, c.records)
	return out
}

// Sorted returns a copy ordered by view count, highest first. Ties keep
// insertion order.
func (c *Catalog) Sorted() []VideoRecord {
	out := c.Records()
	SortByViews(out)
	return out
}

// add inserts r unless its id is already present.
func (c *Catalog) add(r VideoRecord) bool {
	if _, ok := c.index[r.ID]; ok {
		return false
	}
	c.index[r.ID] = len(c.records)
	c.records = append(c.records, r)
	return true
}

// bump increments the appearance count of an existing record.
func (c *Catalog) bump(id string) {
	r := &c.records[c.index[id]]
	r.TrendScore = scorePtr(r.Score() + 1)
}

// SortByViews orders records by view count, highest first, keeping the
// relative order of equal counts.
func SortByViews(records []VideoRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ViewCount > records[j].ViewCount
	})
}

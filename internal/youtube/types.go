// Package youtube provides a client for the YouTube Data API v3.
//
// This package enables music to:
// - List the regions YouTube serves content to
// - Fetch the most popular videos of a category in one region
// - Tell rejected regions apart from transport failures
package youtube

// Region is one entry of the i18nRegions list.
type Region struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Video is one item of a region's most popular chart. Statistics are the
// decimal strings the API returns; empty when the API omits them.
type Video struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	ViewCount    string `json:"view_count"`
	LikeCount    string `json:"like_count"`
	CommentCount string `json:"comment_count"`
}

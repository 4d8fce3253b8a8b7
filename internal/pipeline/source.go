package pipeline

import (
	"context"

	"github.com/clitic/music/internal/aggregator"
	"github.com/clitic/music/internal/youtube"
)

// RegionSource lists the regions to survey, in a stable order.
type RegionSource interface {
	Regions(ctx context.Context) ([]string, error)
}

// TrendingSource returns the trending entries of one region. An error
// wrapping youtube.ErrRegionRejected skips the region; any other error
// fails the run.
type TrendingSource interface {
	Trending(ctx context.Context, region string) ([]aggregator.Entry, error)
}

// YouTubeSource serves both sources from the YouTube Data API.
type YouTubeSource struct {
	client *youtube.Client
}

// NewYouTubeSource wraps a configured API client.
func NewYouTubeSource(client *youtube.Client) *YouTubeSource {
	return &YouTubeSource{client: client}
}

func (s *YouTubeSource) Regions(ctx context.Context) ([]string, error) {
	regions, err := s.client.FetchRegions(ctx)
	if err != nil {
		return nil, err
	}
	codes := make([]string, len(regions))
	for i, r := range regions {
		codes[i] = r.Code
	}
	return codes, nil
}

func (s *YouTubeSource) Trending(ctx context.Context, region string) ([]aggregator.Entry, error) {
	videos, err := s.client.FetchTrending(ctx, region)
	if err != nil {
		return nil, err
	}
	entries := make([]aggregator.Entry, len(videos))
	for i, v := range videos {
		entries[i] = aggregator.Entry{
			ID:           v.ID,
			Title:        v.Title,
			ViewCount:    v.ViewCount,
			LikeCount:    v.LikeCount,
			CommentCount: v.CommentCount,
		}
	}
	return entries, nil
}

package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	defaultBaseURL = "https://www.googleapis.com"

	// MusicCategoryID is the YouTube video category for music.
	MusicCategoryID = "10"

	// MaxResultsPerPage is the largest page size the videos endpoint accepts.
	MaxResultsPerPage = 50
)

// HTTPClient interface for making HTTP requests (allows injection for testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBaseURL sets a custom base URL (useful for testing).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithCategory sets the video category of the trending chart.
func WithCategory(id string) ClientOption {
	return func(c *Client) {
		if id != "" {
			c.categoryID = id
		}
	}
}

// WithMaxResults sets the page size, clamped to 1..50.
func WithMaxResults(n int) ClientOption {
	return func(c *Client) {
		if n < 1 || n > MaxResultsPerPage {
			n = MaxResultsPerPage
		}
		c.maxResults = n
	}
}

// WithMaxPages limits how many pages of a chart are followed. Zero follows
// every page.
func WithMaxPages(n int) ClientOption {
	return func(c *Client) {
		if n < 0 {
			n = 0
		}
		c.maxPages = n
	}
}

// Client is a YouTube Data API client authenticated with an API key.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPClient
	categoryID string
	maxResults int
	maxPages   int
}

// NewClient creates a new YouTube API client with the given API key.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
		categoryID: MusicCategoryID,
		maxResults: MaxResultsPerPage,
		maxPages:   1,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchRegions returns the regions YouTube serves, in API order.
func (c *Client) FetchRegions(ctx context.Context) ([]Region, error) {
	q := url.Values{}
	q.Set("part", "snippet")

	body, err := c.doRequest(ctx, "i18nRegions", q)
	if err != nil {
		return nil, err
	}

	var response regionsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse YouTube API regions response: %w", err)
	}

	regions := make([]Region, 0, len(response.Items))
	for _, item := range response.Items {
		code := item.ID
		if code == "" {
			code = item.Snippet.GL
		}
		if code == "" {
			continue
		}
		regions = append(regions, Region{Code: code, Name: item.Snippet.Name})
	}

	return regions, nil
}

// FetchTrending returns the most popular videos of the configured category
// in one region, following pagination up to the page limit. A region the
// API refuses yields an error wrapping ErrRegionRejected.
func (c *Client) FetchTrending(ctx context.Context, regionCode string) ([]Video, error) {
	q := url.Values{}
	q.Set("part", "snippet,statistics")
	q.Set("chart", "mostPopular")
	q.Set("maxResults", strconv.Itoa(c.maxResults))
	q.Set("regionCode", regionCode)
	q.Set("videoCategoryId", c.categoryID)

	videos := make([]Video, 0, c.maxResults)
	for page := 1; ; page++ {
		body, err := c.doRequest(ctx, "videos", q)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.rejectsRegion() {
				return nil, fmt.Errorf("%w %s: %s", ErrRegionRejected, regionCode, apiErr.Message)
			}
			return nil, err
		}

		var response videosResponse
		if err := json.Unmarshal(body, &response); err != nil {
			return nil, fmt.Errorf("failed to parse YouTube API videos response for %s: %w", regionCode, err)
		}

		for _, item := range response.Items {
			videos = append(videos, Video{
				ID:           item.ID,
				Title:        item.Snippet.Title,
				ViewCount:    string(item.Statistics.ViewCount),
				LikeCount:    string(item.Statistics.LikeCount),
				CommentCount: string(item.Statistics.CommentCount),
			})
		}

		if response.NextPageToken == "" || (c.maxPages > 0 && page >= c.maxPages) {
			break
		}
		q.Set("pageToken", response.NextPageToken)
	}

	return videos, nil
}

func (c *Client) doRequest(ctx context.Context, resource string, q url.Values) ([]byte, error) {
	q.Set("key", c.apiKey)
	endpoint := fmt.Sprintf("%s/youtube/v3/%s?%s", c.baseURL, resource, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("YouTube API request failed: %w", redactKey(err, c.apiKey))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read YouTube API response: %w", err)
	}

	if apiErr := parseAPIError(resp.StatusCode, body); apiErr != nil {
		return nil, apiErr
	}

	return body, nil
}

// redactKey keeps the API key out of url.Error messages, which embed the
// request URL.
func redactKey(err error, key string) error {
	var urlErr *url.Error
	if key == "" || !errors.As(err, &urlErr) {
		return err
	}
	redacted := *urlErr
	redacted.URL = strings.ReplaceAll(urlErr.URL, url.QueryEscape(key), "REDACTED")
	return &redacted
}

// API response types (private - implementation detail)

type regionsResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			GL   string `json:"gl"`
			Name string `json:"name"`
		} `json:"snippet"`
	} `json:"items"`
}

type videosResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
		Statistics struct {
			ViewCount    statistic `json:"viewCount"`
			LikeCount    statistic `json:"likeCount"`
			CommentCount statistic `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// statistic accepts the API's string-encoded counts as well as bare numbers
// and null, so one odd field does not fail the whole page.
type statistic string

func (s *statistic) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = statistic(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		*s = statistic(num.String())
		return nil
	}
	*s = ""
	return nil
}

// Package contracts holds recorded payloads of the external formats music
// depends on: YouTube Data API v3 responses and the snapshot file layout.
// Tests in this package check the real clients and stores against them.
package contracts

// YouTubeRegionsContract is an i18nRegions.list response (part=snippet).
const YouTubeRegionsContract = `{
  "kind": "youtube#i18nRegionListResponse",
  "etag": "HTm2FIn6z9tqhY1wTmSI0iZvTM4",
  "items": [
    {
      "kind": "youtube#i18nRegion",
      "etag": "Ngxhuzb1UMdlsDRqA0ge2Q1gVIw",
      "id": "DZ",
      "snippet": {"gl": "DZ", "name": "Algeria"}
    },
    {
      "kind": "youtube#i18nRegion",
      "etag": "vSkFbjPgxWTS2bGWSsDvBZjU8v8",
      "id": "AR",
      "snippet": {"gl": "AR", "name": "Argentina"}
    }
  ]
}`

// YouTubeVideosContract is a videos.list response for chart=mostPopular with
// part=snippet,statistics. Counts are string encoded; commentCount is absent
// when comments are disabled.
const YouTubeVideosContract = `{
  "kind": "youtube#videoListResponse",
  "etag": "ZMuKJUdnt3MnQOqw9fQwAh1q2jI",
  "nextPageToken": "CAIQAA",
  "items": [
    {
      "kind": "youtube#video",
      "etag": "n1hXrfLwOQGLFe4hIY9eKNmyOGk",
      "id": "kJQP7kiw5Fk",
      "snippet": {
        "publishedAt": "2017-01-12T19:06:32Z",
        "channelId": "UCLp8RBhQHu9wSsq62j_Md6A",
        "title": "Luis Fonsi - Despacito ft. Daddy Yankee",
        "categoryId": "10"
      },
      "statistics": {
        "viewCount": "8712495103",
        "likeCount": "54195810",
        "favoriteCount": "0",
        "commentCount": "4503217"
      }
    },
    {
      "kind": "youtube#video",
      "etag": "Q9tTw8i3Zr1jCU5lq0aKo0cSPOs",
      "id": "JGwWNGJdvx8",
      "snippet": {
        "publishedAt": "2017-01-30T10:57:50Z",
        "channelId": "UC0C-w0YjGpqDXGB8IHb662A",
        "title": "Ed Sheeran - Shape of You (Official Music Video)",
        "categoryId": "10"
      },
      "statistics": {
        "viewCount": "6471036540",
        "likeCount": "33014416",
        "favoriteCount": "0"
      }
    }
  ],
  "pageInfo": {"totalResults": 200, "resultsPerPage": 2}
}`

// YouTubeChartNotFoundContract is the error body returned when a region has
// no chart for the requested category.
const YouTubeChartNotFoundContract = `{
  "error": {
    "code": 404,
    "message": "The requested video chart is not supported or is not available.",
    "errors": [
      {
        "message": "The requested video chart is not supported or is not available.",
        "domain": "youtube.video",
        "reason": "videoChartNotFound",
        "location": "chart",
        "locationType": "parameter"
      }
    ]
  }
}`

// YouTubeQuotaContract is the error body returned once the daily quota is
// spent.
const YouTubeQuotaContract = `{
  "error": {
    "code": 403,
    "message": "The request cannot be completed because you have exceeded your quota.",
    "errors": [
      {
        "message": "The request cannot be completed because you have exceeded your quota.",
        "domain": "youtube.quota",
        "reason": "quotaExceeded"
      }
    ]
  }
}`

// SnapshotContract is a data.json file as written by earlier releases: an
// indented array whose frequency field is a percentage of regions.
const SnapshotContract = `[
    {
        "id": "kJQP7kiw5Fk",
        "title": "Luis Fonsi - Despacito ft. Daddy Yankee",
        "view_count": 8712495103,
        "like_count": 54195810,
        "comment_count": 4503217,
        "frequency": 42.857142857142854
    },
    {
        "id": "JGwWNGJdvx8",
        "title": "Ed Sheeran - Shape of You (Official Music Video)",
        "view_count": 6471036540,
        "like_count": 33014416,
        "comment_count": 0,
        "frequency": 28.571428571428573
    }
]`

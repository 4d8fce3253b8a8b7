package youtube

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrRegionRejected is returned by FetchTrending when the API refuses to
// serve a chart for the region. The run can continue without it.
var ErrRegionRejected = errors.New("YouTube API rejected region")

// APIError is a non-successful YouTube API response.
type APIError struct {
	StatusCode int
	Reason     string
	Message    string
}

func (e *APIError) Error() string {
	detail := e.Message
	if e.Reason != "" {
		detail = e.Reason + ": " + e.Message
	}

	var msg string
	switch e.StatusCode {
	case http.StatusBadRequest:
		msg = "YouTube API rejected the request"
	case http.StatusUnauthorized:
		msg = "YouTube API authentication failed - check that YT_API_KEY holds a valid API key"
	case http.StatusForbidden:
		msg = "YouTube API access denied - check the API key restrictions and daily quota"
	case http.StatusNotFound:
		msg = "YouTube API resource not found"
	case http.StatusTooManyRequests:
		msg = "YouTube API rate limit exceeded - please try again later"
	case http.StatusServiceUnavailable:
		msg = "YouTube API temporarily unavailable - please try again in a few minutes"
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		msg = "YouTube API server error - please try again later"
	default:
		msg = fmt.Sprintf("YouTube API error (status %d)", e.StatusCode)
	}
	if detail != "" {
		msg += " (" + detail + ")"
	}
	return msg
}

// rejectsRegion reports whether the API answered with a structured error
// that only concerns the requested region.
func (e *APIError) rejectsRegion() bool {
	if e.Message == "" && e.Reason == "" {
		return false
	}
	switch e.StatusCode {
	case http.StatusOK, http.StatusBadRequest, http.StatusNotFound:
		return true
	}
	return false
}

type errorEnvelope struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// parseAPIError extracts the error object of a response body, if any.
func parseAPIError(statusCode int, body []byte) *APIError {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		if statusCode == http.StatusOK {
			return nil
		}
		return &APIError{StatusCode: statusCode}
	}
	apiErr := &APIError{StatusCode: statusCode, Message: env.Error.Message}
	if len(env.Error.Errors) > 0 {
		apiErr.Reason = env.Error.Errors[0].Reason
	}
	if apiErr.Message == "" && apiErr.Reason == "" {
		apiErr.Message = "unspecified error"
	}
	return apiErr
}

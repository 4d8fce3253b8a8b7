// Package browser opens YouTube video pages in the default browser.
package browser

import (
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
)

var (
	// ErrUnsupportedScheme is returned for anything but http and https.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
	// ErrUntrustedHost is returned for URLs outside YouTube.
	ErrUntrustedHost = errors.New("refusing to open non-YouTube URL")
)

var youtubeHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
}

// Validate checks that rawURL is an http(s) link to a YouTube host. Only
// validated URLs are handed to the system opener.
func Validate(rawURL string) error {
	if strings.ContainsAny(rawURL, " \t\r\n\x00") {
		return fmt.Errorf("invalid URL %q", rawURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q (only http and https allowed)", ErrUnsupportedScheme, u.Scheme)
	}
	if !youtubeHosts[strings.ToLower(u.Hostname())] {
		return fmt.Errorf("%w: %s", ErrUntrustedHost, u.Host)
	}
	return nil
}

// Command returns the command that opens rawURL on the given platform.
func Command(goos, rawURL string) (*exec.Cmd, error) {
	if err := Validate(rawURL); err != nil {
		return nil, err
	}

	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return exec.Command("xdg-open", rawURL), nil // #nosec G204 -- URL validated above
	case "darwin":
		return exec.Command("open", rawURL), nil // #nosec G204 -- URL validated above
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", rawURL), nil // #nosec G204 -- URL validated above
	default:
		return nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}

// Open opens rawURL in the default browser without waiting for it.
func Open(rawURL string) error {
	cmd, err := Command(runtime.GOOS, rawURL)
	if err != nil {
		return err
	}
	return cmd.Start()
}

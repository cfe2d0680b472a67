// Package inject carries the in-page protocol that substitutes the
// browser's hardware capture with a synthetic stream derived from a served
// media file.
package inject

import (
	_ "embed"
	"fmt"
)

// Version is the protocol version the page script reports back. The
// controller checks the acknowledged version instead of probing for page
// globals left by earlier runs.
const Version = 1

// LoadTimeoutSeconds bounds how long the page script waits for the media
// element to become playable before resolving with a failure.
const LoadTimeoutSeconds = 20

//go:embed inject.js
var script string

// Result is the structured resolution of the page protocol. The script
// resolves instead of throwing so the page's unhandled-rejection handling
// is never disturbed.
type Result struct {
	Success     bool   `json:"success"`
	Version     int    `json:"version"`
	Error       string `json:"error,omitempty"`
	VideoTracks int    `json:"videoTracks"`
	AudioTracks int    `json:"audioTracks"`
}

// Expression builds the JavaScript expression that installs the virtual
// camera for videoURL. The expression evaluates to a Promise and must be
// awaited by the caller.
func Expression(videoURL string, captureAudio bool) string {
	return fmt.Sprintf("(%s)(%q, %t)", script, videoURL, captureAudio)
}

// TeardownExpression cancels the draw loop, stops the synthetic tracks,
// closes the audio graph, and restores the original capture entry point.
// Safe to evaluate when nothing is installed.
func TeardownExpression() string {
	return "window.__vcamTeardown ? (window.__vcamTeardown(), true) : false"
}

package cli

import (
	"fmt"
	"io"
	"sync"
)

// terminalHost stands in for the browser: notifications are printed to
// stderr and redirects are printed as a URL to open.
type terminalHost struct {
	mu       sync.Mutex
	w        io.Writer
	location string
	lastURL  string
}

func newTerminalHost(w io.Writer, location string) *terminalHost {
	return &terminalHost{w: w, location: location}
}

func (h *terminalHost) Notify(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	errorLabel.Fprintf(h.w, "✗ %s\n", message)
}

func (h *terminalHost) Redirect(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastURL = url
	warnLabel.Fprint(h.w, "→ ")
	fmt.Fprintf(h.w, "open %s in your browser\n", url)
}

func (h *terminalHost) Location() string {
	return h.location
}

// LastRedirect returns the last URL the user was sent to.
func (h *terminalHost) LastRedirect() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastURL
}

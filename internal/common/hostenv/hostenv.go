// Package hostenv defines the capabilities the access layer borrows from its
// host: showing notifications, navigating, and reporting the current
// location. The browser is one possible host; the CLI is another.
package hostenv

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Notifier surfaces a human readable error message to the user.
type Notifier interface {
	Notify(message string)
}

// Navigator performs navigation on behalf of the access layer.
type Navigator interface {
	// Redirect navigates to url. In a browser this replaces the page; other
	// hosts decide how to present it.
	Redirect(url string)
	// Location returns the location the user is currently at, used to
	// return there after logging in again.
	Location() string
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

// Notify implements Notifier.
func (f NotifierFunc) Notify(message string) { f(message) }

// LogNotifier writes notifications to the global logger.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(message string) {
	log.Warn().Str("notification", message).Msg("notify")
}

// Recorder is an in-memory Notifier and Navigator. It records every call and
// is safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	location  string
	messages  []string
	redirects []string
}

// NewRecorder returns a Recorder reporting location as the current location.
func NewRecorder(location string) *Recorder {
	return &Recorder{location: location}
}

// Notify implements Notifier.
func (r *Recorder) Notify(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

// Redirect implements Navigator.
func (r *Recorder) Redirect(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redirects = append(r.redirects, url)
}

// Location implements Navigator.
func (r *Recorder) Location() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.location
}

// Messages returns a copy of the recorded notifications.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

// Redirects returns a copy of the recorded redirect targets.
func (r *Recorder) Redirects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.redirects...)
}

var (
	_ Notifier  = NotifierFunc(nil)
	_ Notifier  = LogNotifier{}
	_ Notifier  = &Recorder{}
	_ Navigator = &Recorder{}
)

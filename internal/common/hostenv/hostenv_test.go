package hostenv

import (
	"bytes"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder("/grades")
	assert.Equal(t, "/grades", r.Location())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Notify("boom")
		}()
	}
	wg.Wait()
	r.Redirect("http://identity.local/login")

	assert.Len(t, r.Messages(), 10)
	assert.Equal(t, []string{"http://identity.local/login"}, r.Redirects())

	msgs := r.Messages()
	msgs[0] = "changed"
	assert.Equal(t, "boom", r.Messages()[0], "copies are returned")
}

func TestNotifierFunc(t *testing.T) {
	var got string
	var n Notifier = NotifierFunc(func(m string) { got = m })
	n.Notify("session expired")
	assert.Equal(t, "session expired", got)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	LogNotifier{}.Notify("upload failed")
	assert.Contains(t, buf.String(), `"notification":"upload failed"`)
}

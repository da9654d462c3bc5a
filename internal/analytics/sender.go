package analytics

import (
	"context"
	"net/http"

	"github.com/tansive/apiaccess/internal/request"
)

// DefaultPath is the analytics endpoint path.
const DefaultPath = "/analytics"

// ExecutorSender posts batches through a request executor. Requests are sent
// with keepalive so a flush started during shutdown still completes.
type ExecutorSender struct {
	executor *request.Executor
	path     string
}

// NewExecutorSender returns a sender posting to path ("" means DefaultPath).
func NewExecutorSender(e *request.Executor, path string) *ExecutorSender {
	if path == "" {
		path = DefaultPath
	}
	return &ExecutorSender{executor: e, path: path}
}

// Send implements Sender.
func (s *ExecutorSender) Send(ctx context.Context, batch []InteractionEvent) error {
	_, err := s.executor.Do(ctx, request.Descriptor{
		Method:    http.MethodPost,
		Path:      s.path,
		Body:      batch,
		Keepalive: true,
	})
	return err
}

var _ Sender = (*ExecutorSender)(nil)

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tansive/apiaccess/pkg/api"
)

// closeTimeout bounds the final analytics flush.
const closeTimeout = 5 * time.Second

// withClient builds a client from the loaded configuration, initializes
// the session with token (or the stored one when empty) and runs fn. An
// interrupt cancels fn; queued analytics are still flushed on the way out.
func withClient(cmd *cobra.Command, token string, fn func(ctx context.Context, c *api.Client, host *terminalHost) error) error {
	if cfg == nil {
		return errors.New("no configuration loaded")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host := newTerminalHost(cmd.ErrOrStderr(), "")
	opts := append([]api.ClientOption{api.WithNavigator(host), api.WithNotifier(host)}, extraOptions...)
	c, err := api.NewClientFromConfig(ctx, cfg, opts...)
	if err != nil {
		return errors.Wrap(err, "unable to create client")
	}
	// an interrupt hides the host, which sends queued events right away
	stopHidden := context.AfterFunc(ctx, func() { c.OnVisibilityChange(true) })
	defer func() {
		stopHidden()
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := c.Close(closeCtx); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("closing client")
		}
	}()

	if err := c.Init(ctx, token); err != nil {
		return errors.Wrap(err, "unable to restore session")
	}
	return fn(ctx, c, host)
}

// handled marks err as already reported to the user through the notifier.
// With --json the error is still printed as a JSON object.
func handled(err error) error {
	if err == nil || jsonOutput {
		return err
	}
	return fmt.Errorf("%w: %w", ErrAlreadyHandled, err)
}

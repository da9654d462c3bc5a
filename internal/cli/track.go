package cli

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tansive/apiaccess/pkg/api"
)

// newTrackCmd creates and returns a new track command
func newTrackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track [EVENT_TYPE] [flags]",
		Short: "Record interaction events for analytics",
		Long: `Record one event, or every event in a YAML file, and send them to the
analytics endpoint in a single batch.

Examples:
  apiaccess track click --screen gradebook --target export --action press
  apiaccess track view --screen home --props '{"course":"cs101"}'
  apiaccess track -f events.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: runTrack,
	}
	cmd.Flags().String("screen", "", "Screen the event happened on")
	cmd.Flags().String("target", "", "Element the user interacted with")
	cmd.Flags().String("action", "", "What the user did")
	cmd.Flags().String("props", "", "Additional properties as JSON or YAML, or @FILE")
	cmd.Flags().StringP("filename", "f", "", "YAML file with one event per document")
	return cmd
}

func runTrack(cmd *cobra.Command, args []string) error {
	events, err := eventsFromFlags(cmd, args)
	if err != nil {
		return err
	}

	validate := validator.New()
	for i := range events {
		if err := validate.Struct(&events[i]); err != nil {
			return fmt.Errorf("event %d: eventType is required", i+1)
		}
	}

	return withClient(cmd, "", func(ctx context.Context, c *api.Client, _ *terminalHost) error {
		for _, ev := range events {
			c.Record(ev)
		}
		if err := c.FlushAnalytics(ctx); err != nil {
			return errors.Wrap(err, "unable to send events")
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{"status": "success", "recorded": len(events)})
		}
		okLabel.Fprintf(cmd.OutOrStdout(), "✓ Recorded %d event(s)\n", len(events))
		return nil
	})
}

func eventsFromFlags(cmd *cobra.Command, args []string) ([]api.InteractionEvent, error) {
	filename, _ := cmd.Flags().GetString("filename")
	if filename != "" {
		if len(args) > 0 {
			return nil, errors.New("EVENT_TYPE and --filename cannot be combined")
		}
		docs, err := ReadDocumentsFile(filename)
		if err != nil {
			return nil, err
		}
		if len(docs) == 0 {
			return nil, fmt.Errorf("no events in %s", filename)
		}
		events := make([]api.InteractionEvent, 0, len(docs))
		for i, doc := range docs {
			var ev api.InteractionEvent
			if err := mapstructure.Decode(doc, &ev); err != nil {
				return nil, errors.Wrapf(err, "event %d", i+1)
			}
			events = append(events, ev)
		}
		return events, nil
	}

	if len(args) == 0 {
		return nil, errors.New("EVENT_TYPE or --filename is required")
	}
	ev := api.InteractionEvent{EventType: args[0]}
	ev.Screen, _ = cmd.Flags().GetString("screen")
	ev.Target, _ = cmd.Flags().GetString("target")
	ev.Action, _ = cmd.Flags().GetString("action")
	if raw, _ := cmd.Flags().GetString("props"); raw != "" {
		v, err := readValue(raw)
		if err != nil {
			return nil, errors.Wrap(err, "invalid --props")
		}
		props, ok := v.(map[string]any)
		if !ok {
			return nil, errors.New("--props must be an object")
		}
		ev.AdditionalProperties = props
	}
	return []api.InteractionEvent{ev}, nil
}

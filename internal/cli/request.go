package cli

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tansive/apiaccess/pkg/api"
)

var methods = map[string]string{
	"GET":    http.MethodGet,
	"POST":   http.MethodPost,
	"PUT":    http.MethodPut,
	"PATCH":  http.MethodPatch,
	"DELETE": http.MethodDelete,
}

// newRequestCmd creates and returns a new request command
func newRequestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request METHOD PATH [flags]",
		Short: "Send a REST request to the API",
		Long: `Send a request to PATH, relative to the API base URL, and print the
response. The body may be inline JSON or YAML, or @FILE.

Examples:
  apiaccess request GET /courses --query term=2024fa --query dept=CS
  apiaccess request POST /submissions --body @submission.yaml --validate
  apiaccess request DELETE /drafts/42`,
		Args: cobra.ExactArgs(2),
		RunE: runRequest,
	}
	cmd.Flags().String("body", "", "Request body as JSON or YAML, or @FILE")
	cmd.Flags().StringArray("query", nil, "Query parameter as KEY=VALUE (repeatable)")
	cmd.Flags().String("raw-query", "", "Query string sent verbatim")
	cmd.Flags().Bool("validate", false, "Print a 422 response instead of failing")
	return cmd
}

func runRequest(cmd *cobra.Command, args []string) error {
	method, ok := methods[strings.ToUpper(args[0])]
	if !ok {
		return fmt.Errorf("unsupported method %q", args[0])
	}
	d := api.Descriptor{Method: method, Path: args[1]}

	if raw, _ := cmd.Flags().GetString("body"); raw != "" {
		body, err := readValue(raw)
		if err != nil {
			return errors.Wrap(err, "invalid --body")
		}
		d.Body = body
	}
	pairs, _ := cmd.Flags().GetStringArray("query")
	rawQuery, _ := cmd.Flags().GetString("raw-query")
	q, err := buildQuery(pairs, rawQuery)
	if err != nil {
		return err
	}
	d.Query = q
	d.InlineValidation, _ = cmd.Flags().GetBool("validate")

	return withClient(cmd, "", func(ctx context.Context, c *api.Client, _ *terminalHost) error {
		res, err := c.Do(ctx, d)
		if err != nil {
			return handled(err)
		}
		if err := printResult(cmd, res); err != nil {
			return err
		}
		if res.IsValidationFailure() {
			warnLabel.Fprintln(cmd.ErrOrStderr(), "validation failed")
			return ErrAlreadyHandled
		}
		return nil
	})
}

// buildQuery turns KEY=VALUE pairs into a structured query. A repeated key
// becomes a list. pairs and rawQuery are mutually exclusive.
func buildQuery(pairs []string, rawQuery string) (api.Query, error) {
	if rawQuery != "" {
		if len(pairs) > 0 {
			return api.Query{}, errors.New("--query and --raw-query cannot be combined")
		}
		return api.RawQuery(rawQuery), nil
	}
	if len(pairs) == 0 {
		return api.Query{}, nil
	}
	params := map[string]any{}
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return api.Query{}, fmt.Errorf("invalid query parameter %q, expected KEY=VALUE", pair)
		}
		switch prev := params[k].(type) {
		case nil:
			params[k] = v
		case string:
			params[k] = []string{prev, v}
		case []string:
			params[k] = append(prev, v)
		}
	}
	return api.Params(params), nil
}

func printResult(cmd *cobra.Command, res *api.Result) error {
	data, err := res.Data()
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"status":     res.StatusCode,
			"request_id": res.RequestID,
			"value":      data,
		})
	}
	if text, ok := data.(string); ok {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), text)
		return err
	}
	return printOutput(cmd.OutOrStdout(), data)
}

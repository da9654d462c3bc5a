package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tansive/apiaccess/pkg/api"
	"github.com/tidwall/gjson"
)

// newGraphQLCmd creates and returns a new graphql command
func newGraphQLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graphql [flags]",
		Short: "Send a GraphQL query, optionally with file uploads",
		Long: `Send a GraphQL query. Variables may be inline JSON or YAML, or @FILE.
--file attaches a local file as the value of a variable; nested variables
are addressed with dots and a PATH of "-" reads the file from stdin. Upload
progress is printed to stderr.

Examples:
  apiaccess graphql --query '{ me { netid } }'
  apiaccess graphql --query @submit.graphql --variables '{"input":{"title":"Essay"}}' \
    --file input.attachment=./essay.pdf
  cat essay.pdf | apiaccess graphql --query @submit.graphql --file input.attachment=-`,
		RunE: runGraphQL,
	}
	cmd.Flags().String("query", "", "GraphQL query, or @FILE")
	cmd.Flags().String("variables", "", "Variables as JSON or YAML, or @FILE")
	cmd.Flags().String("signature", "", "Persisted query signature")
	cmd.Flags().StringArray("file", nil, "Attach a file as VARIABLE=PATH (repeatable)")
	cmd.Flags().Bool("omit-uploads", false, "Send placeholders without the file contents")
	cmd.MarkFlagRequired("query")
	return cmd
}

func runGraphQL(cmd *cobra.Command, args []string) error {
	query, _ := cmd.Flags().GetString("query")
	query, err := readText(query)
	if err != nil {
		return err
	}

	variables := &api.Object{}
	if raw, _ := cmd.Flags().GetString("variables"); raw != "" {
		if variables, err = readVariables(raw); err != nil {
			return errors.Wrap(err, "invalid --variables")
		}
	}

	files, _ := cmd.Flags().GetStringArray("file")
	stdinUsed := false
	for _, spec := range files {
		name, path, ok := strings.Cut(spec, "=")
		if !ok || name == "" || path == "" {
			return fmt.Errorf("invalid --file %q, expected VARIABLE=PATH", spec)
		}
		var f *api.File
		if path == "-" {
			if stdinUsed {
				return errors.New("only one --file may read from stdin")
			}
			stdinUsed = true
			f, err = api.NewStreamFile(name, cmd.InOrStdin())
		} else {
			f, err = api.OpenFile(path)
		}
		if err != nil {
			return errors.Wrapf(err, "unable to open %s", path)
		}
		if err := setPath(variables, strings.Split(name, "."), f); err != nil {
			return err
		}
	}

	opts := api.UploadOptions{}
	opts.Signature, _ = cmd.Flags().GetString("signature")
	opts.OmitUploads, _ = cmd.Flags().GetBool("omit-uploads")
	if !jsonOutput {
		opts.OnProgress = progressPrinter(cmd)
	}

	return withClient(cmd, "", func(ctx context.Context, c *api.Client, _ *terminalHost) error {
		res, err := c.GraphQLWithUploads(ctx, query, variables, opts)
		if err != nil {
			return handled(err)
		}
		return printResult(cmd, res)
	})
}

// readText returns arg, or the contents of the file when arg is "@path".
func readText(arg string) (string, error) {
	path, ok := strings.CutPrefix(arg, "@")
	if !ok {
		return arg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read %s", path)
	}
	return string(data), nil
}

// readVariables parses --variables. JSON keeps its key order and exact
// numbers; anything else is read as YAML.
func readVariables(raw string) (*api.Object, error) {
	text, err := readText(raw)
	if err != nil {
		return nil, err
	}
	var v api.Value
	if gjson.Valid(text) {
		if v, err = api.Decode([]byte(text)); err != nil {
			return nil, err
		}
	} else {
		doc, err := readValue(raw)
		if err != nil {
			return nil, err
		}
		v = api.FromAny(doc)
	}
	obj, ok := v.(*api.Object)
	if !ok {
		return nil, errors.New("variables must be an object")
	}
	return obj, nil
}

// setPath stores v in obj at the dotted path, creating objects on the way.
func setPath(obj *api.Object, path []string, v api.Value) error {
	for i, key := range path[:len(path)-1] {
		next, ok := obj.Get(key)
		if !ok {
			child := &api.Object{}
			obj.Set(key, child)
			obj = child
			continue
		}
		child, ok := next.(*api.Object)
		if !ok || child == nil {
			return fmt.Errorf("variable %s is not an object", strings.Join(path[:i+1], "."))
		}
		obj = child
	}
	obj.Set(path[len(path)-1], v)
	return nil
}

func progressPrinter(cmd *cobra.Command) api.ProgressFunc {
	w := cmd.ErrOrStderr()
	return func(p *api.Progress) {
		switch {
		case p == nil:
			fmt.Fprintln(w)
		case p.Ratio == api.IndeterminateRatio:
			fmt.Fprintf(w, "\ruploading: %d bytes", p.Loaded)
		default:
			fmt.Fprintf(w, "\ruploading: %3.0f%%", p.Ratio*100)
		}
	}
}

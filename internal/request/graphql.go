package request

import (
	"context"
	"net/http"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"
	"github.com/tansive/apiaccess/internal/accesserr"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

type graphqlEnvelope struct {
	Query     string `json:"query"`
	Variables any    `json:"variables"`
}

// graphqlBody encodes {query, variables, extensions}. The query signature
// lives in extensions.querySignature when given.
func graphqlBody(query string, variables any, signature string) ([]byte, error) {
	body, err := json.Marshal(graphqlEnvelope{Query: query, Variables: variables})
	if err != nil {
		return nil, err
	}
	if signature == "" {
		return sjson.SetRawBytes(body, "extensions", []byte("{}"))
	}
	return sjson.SetBytes(body, "extensions.querySignature", signature)
}

// GraphQL posts a query to the GraphQL endpoint. A response carrying errors
// fails with *accesserr.GraphQLError even when its status is 200.
func (e *Executor) GraphQL(ctx context.Context, query string, variables any, signature string) (*Result, error) {
	body, err := graphqlBody(query, variables, signature)
	if err != nil {
		return nil, e.fail(ctx, &accesserr.TransportError{Cause: err})
	}
	res, err := e.send(ctx, Descriptor{Method: http.MethodPost, Path: e.graphqlPath}, body)
	if err != nil {
		return nil, err
	}
	if err := e.checkGraphQLErrors(ctx, res.Body); err != nil {
		return nil, err
	}
	return res, nil
}

// checkGraphQLErrors fails when body has a non-empty errors array. Only the
// first message is shown to the user; the error carries them all.
func (e *Executor) checkGraphQLErrors(ctx context.Context, body []byte) error {
	errs := gjson.GetBytes(body, "errors")
	if !errs.IsArray() || len(errs.Array()) == 0 {
		return nil
	}

	gqlErr := &accesserr.GraphQLError{}
	raw, _ := errs.Value().([]any)
	if err := mapstructure.Decode(raw, &gqlErr.Errors); err != nil || len(gqlErr.Errors) == 0 {
		log.Ctx(ctx).Debug().Err(err).Msg("unable to decode graphql errors")
		gqlErr.Errors = nil
		for _, item := range errs.Array() {
			gqlErr.Errors = append(gqlErr.Errors, accesserr.GraphQLErrorItem{Message: item.Get("message").String()})
		}
	}

	log.Ctx(ctx).Warn().Int("count", len(gqlErr.Errors)).Msg("graphql errors")
	e.notifier.Notify(gqlErr.Errors[0].Message)
	return gqlErr
}

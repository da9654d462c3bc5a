package request

import (
	"context"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/apiaccess/internal/accesserr"
	"github.com/tansive/apiaccess/internal/common/httpclient"
	"github.com/tansive/apiaccess/internal/upload"
	"github.com/tidwall/gjson"
)

// graphqlRouter answers with the request it saw. JSON requests echo the
// envelope; multipart requests echo the body part and every file part.
func graphqlRouter(t *testing.T) http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/graphql", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !httpclient.IsJSONContentType(r.Header.Get("Content-Type")) {
			require.NoError(t, r.ParseMultipartForm(1<<20))
			io.Copy(io.Discard, r.Body)
			files := map[string]any{}
			for name, headers := range r.MultipartForm.File {
				fh, err := headers[0].Open()
				require.NoError(t, err)
				content, _ := io.ReadAll(fh)
				fh.Close()
				files[name] = map[string]any{
					"filename":    headers[0].Filename,
					"contentType": headers[0].Header.Get("Content-Type"),
					"content":     string(content),
				}
			}
			out, _ := json.Marshal(map[string]any{
				"data": map[string]any{
					"multipart": true,
					"envelope":  r.MultipartForm.Value["body"][0],
					"files":     files,
				},
			})
			w.Write(out)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if gjson.GetBytes(body, "query").String() == "fail" {
			io.WriteString(w, `{"data":null,"errors":[
				{"message":"field missing","path":["user",0,"name"],"locations":[{"line":2,"column":5}],"extensions":{"code":"BAD"}},
				{"message":"second problem"}]}`)
			return
		}
		out, _ := json.Marshal(map[string]any{"data": map[string]any{"multipart": false, "envelope": string(body)}})
		w.Write(out)
	})
	return r
}

func TestGraphQL(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, graphqlRouter(t), "tok")

	res, err := fx.executor.GraphQL(ctx, "query { me }", map[string]any{"id": 7}, "sig-abc")
	require.NoError(t, err)
	envelope := res.Get("data.envelope").String()
	assert.JSONEq(t, `{"query":"query { me }","variables":{"id":7},"extensions":{"querySignature":"sig-abc"}}`, envelope)

	res, err = fx.executor.GraphQL(ctx, "query { me }", nil, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"query { me }","variables":null,"extensions":{}}`, res.Get("data.envelope").String())
	assert.Empty(t, fx.host.Messages())
}

func TestGraphQLErrors(t *testing.T) {
	fx := newFixture(t, graphqlRouter(t), "tok")

	_, err := fx.executor.GraphQL(context.Background(), "fail", nil, "")
	var gqlErr *accesserr.GraphQLError
	require.ErrorAs(t, err, &gqlErr)
	require.Len(t, gqlErr.Errors, 2)
	assert.Equal(t, accesserr.GraphQLErrorItem{
		Message:    "field missing",
		Path:       []any{"user", float64(0), "name"},
		Locations:  []accesserr.GraphQLErrorLocation{{Line: 2, Column: 5}},
		Extensions: map[string]any{"code": "BAD"},
	}, gqlErr.Errors[0])
	assert.Equal(t, "second problem", gqlErr.Errors[1].Message)
	assert.Equal(t, []string{"field missing"}, fx.host.Messages())
}

func uploadVariables(files ...*upload.File) upload.Value {
	items := make([]upload.Value, 0, len(files))
	for _, f := range files {
		items = append(items, f)
	}
	return &upload.Object{Fields: []upload.Field{
		{Key: "title", Value: upload.Scalar{V: "report"}},
		{Key: "attachments", Value: &upload.Array{Items: items}},
	}}
}

type progressLog struct {
	mu    sync.Mutex
	ticks []*httpclient.Progress
}

func (p *progressLog) record(pr *httpclient.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ticks = append(p.ticks, pr)
}

func TestGraphQLWithUploads(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, graphqlRouter(t), "tok")

	a := upload.NewFile("a.txt", []byte("alpha"))
	a.MimeType = "text/plain"
	b := upload.NewFile("b.bin", []byte{0, 1, 2})
	vars := uploadVariables(a, b)

	progress := &progressLog{}
	res, err := fx.executor.GraphQLWithUploads(ctx, "mutation Upload", vars, UploadOptions{
		Signature:  "sig",
		OnProgress: progress.record,
	})
	require.NoError(t, err)

	assert.True(t, res.Get("data.multipart").Bool())
	assert.JSONEq(t, `{
		"query": "mutation Upload",
		"variables": {
			"title": "report",
			"attachments": [
				{"multipartIndex": 0, "name": "a.txt", "mimeType": "text/plain", "sizeBytes": 5},
				{"multipartIndex": 1, "name": "b.bin", "mimeType": "application/octet-stream", "sizeBytes": 3}
			]
		},
		"extensions": {"querySignature": "sig"}
	}`, res.Get("data.envelope").String())
	assert.Equal(t, "alpha", res.Get("data.files.file0.content").String())
	assert.Equal(t, "a.txt", res.Get("data.files.file0.filename").String())
	assert.Equal(t, "text/plain", res.Get("data.files.file0.contentType").String())
	assert.Equal(t, "\x00\x01\x02", res.Get("data.files.file1.content").String())

	// the caller's tree still holds the files
	attachments, _ := vars.(*upload.Object).Get("attachments")
	assert.Same(t, a, attachments.(*upload.Array).Items[0])

	require.GreaterOrEqual(t, len(progress.ticks), 2)
	assert.Nil(t, progress.ticks[len(progress.ticks)-1], "progress returns to idle")
	last := progress.ticks[len(progress.ticks)-2]
	require.NotNil(t, last)
	assert.Equal(t, last.Total, last.Loaded)
	assert.InDelta(t, 1.0, last.Ratio, 1e-9)
}

func TestGraphQLWithUploadsFallsBack(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, graphqlRouter(t), "tok")

	t.Run("omit uploads keeps placeholders", func(t *testing.T) {
		res, err := fx.executor.GraphQLWithUploads(ctx, "mutation Validate",
			uploadVariables(upload.NewFile("a.txt", []byte("alpha"))),
			UploadOptions{OmitUploads: true})
		require.NoError(t, err)
		assert.False(t, res.Get("data.multipart").Bool())
		envelope := res.Get("data.envelope").String()
		assert.Equal(t, int64(0), gjson.Get(envelope, "variables.attachments.0.multipartIndex").Int())
		assert.Equal(t, "a.txt", gjson.Get(envelope, "variables.attachments.0.name").String())
	})

	t.Run("no files", func(t *testing.T) {
		res, err := fx.executor.GraphQLWithUploads(ctx, "mutation Plain", uploadVariables(), UploadOptions{})
		require.NoError(t, err)
		assert.False(t, res.Get("data.multipart").Bool())
	})

	t.Run("nil variables", func(t *testing.T) {
		res, err := fx.executor.GraphQLWithUploads(ctx, "query", nil, UploadOptions{})
		require.NoError(t, err)
		assert.False(t, res.Get("data.multipart").Bool())
	})

	t.Run("typed nil variables", func(t *testing.T) {
		res, err := fx.executor.GraphQLWithUploads(ctx, "query", (*upload.Object)(nil), UploadOptions{})
		require.NoError(t, err)
		assert.False(t, res.Get("data.multipart").Bool())
		assert.Equal(t, "null", gjson.Get(res.Get("data.envelope").String(), "variables").Raw)
	})
}

func TestGraphQLWithUploadsUnknownSize(t *testing.T) {
	fx := newFixture(t, graphqlRouter(t), "tok")
	f, err := upload.NewStreamFile("s.txt", stringsReader("streamed content"))
	require.NoError(t, err)

	progress := &progressLog{}
	res, err := fx.executor.GraphQLWithUploads(context.Background(), "mutation", uploadVariables(f), UploadOptions{OnProgress: progress.record})
	require.NoError(t, err)
	assert.Equal(t, "streamed content", res.Get("data.files.file0.content").String())

	require.NotEmpty(t, progress.ticks)
	first := progress.ticks[0]
	require.NotNil(t, first)
	assert.Equal(t, int64(-1), first.Total)
	assert.Equal(t, httpclient.IndeterminateRatio, first.Ratio)
}

func TestGraphQLWithUploadsFailures(t *testing.T) {
	t.Run("rejected", func(t *testing.T) {
		fx := newFixture(t, statusRouter(http.StatusRequestEntityTooLarge, "application/json", `{"message":"too big"}`), "tok")
		progress := &progressLog{}
		_, err := fx.executor.GraphQLWithUploads(context.Background(), "mutation",
			uploadVariables(upload.NewFile("a", []byte("a"))), UploadOptions{OnProgress: progress.record})

		var uploadErr *accesserr.UploadError
		require.ErrorAs(t, err, &uploadErr)
		assert.Equal(t, http.StatusRequestEntityTooLarge, uploadErr.Status)
		assert.Equal(t, "upload failed: too big", uploadErr.Error())
		assert.Equal(t, []string{"upload failed: too big"}, fx.host.Messages())
		require.NotEmpty(t, progress.ticks)
		assert.Nil(t, progress.ticks[len(progress.ticks)-1])
	})

	t.Run("aborted", func(t *testing.T) {
		fx := newFixture(t, graphqlRouter(t), "tok")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		progress := &progressLog{}
		_, err := fx.executor.GraphQLWithUploads(ctx, "mutation",
			uploadVariables(upload.NewFile("a", []byte("a"))), UploadOptions{OnProgress: progress.record})
		assert.ErrorIs(t, err, accesserr.ErrUpload)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, []*httpclient.Progress{nil}, progress.ticks)
	})

	t.Run("session never ready", func(t *testing.T) {
		fx := newFixture(t, graphqlRouter(t), "-")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := fx.executor.GraphQLWithUploads(ctx, "mutation",
			uploadVariables(upload.NewFile("a", []byte("a"))), UploadOptions{})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, []string{context.Canceled.Error()}, fx.host.Messages())
		assert.Zero(t, fx.hits.Load())
	})

	t.Run("unauthorized redirects", func(t *testing.T) {
		fx := newFixture(t, statusRouter(http.StatusUnauthorized, "", ""), "tok")
		_, err := fx.executor.GraphQLWithUploads(context.Background(), "mutation",
			uploadVariables(upload.NewFile("a", []byte("a"))), UploadOptions{})
		assert.ErrorIs(t, err, accesserr.ErrUnauthorized)
		assert.EqualValues(t, 1, fx.redirects.Load())
	})

	t.Run("graphql errors in a 200", func(t *testing.T) {
		fx := newFixture(t, statusRouter(http.StatusOK, "application/json", `{"errors":[{"message":"virus found"}]}`), "tok")
		_, err := fx.executor.GraphQLWithUploads(context.Background(), "mutation",
			uploadVariables(upload.NewFile("a", []byte("a"))), UploadOptions{})
		assert.ErrorIs(t, err, accesserr.ErrGraphQL)
		assert.Equal(t, []string{"virus found"}, fx.host.Messages())
	})
}

func stringsReader(s string) io.Reader {
	return &onceReader{data: []byte(s)}
}

// onceReader hands out its data in small chunks to exercise streaming.
type onceReader struct {
	data []byte
}

func (r *onceReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.data[:min(len(r.data), 4)])
	r.data = r.data[n:]
	return n, nil
}

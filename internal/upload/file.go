package upload

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/h2non/filetype"
)

// DefaultMimeType is used when a file's type is neither given nor
// recognizable from its content.
const DefaultMimeType = "application/octet-stream"

// sniffLen is enough of a file's head for filetype to match any type.
const sniffLen = 261

var ErrFileConsumed = errors.New("file content already consumed")

// File is a binary leaf of a variables tree.
type File struct {
	Name     string
	MimeType string // empty means detect from content
	Size     int64  // -1 when unknown

	head []byte
	open func() (io.ReadCloser, error)
}

// NewFile returns an in-memory file.
func NewFile(name string, content []byte) *File {
	return &File{
		Name: name,
		Size: int64(len(content)),
		head: prefix(content, sniffLen),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(content)), nil
		},
	}
}

// OpenFile returns a file backed by path. The content is read when the
// upload is sent.
func OpenFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	info, err := fh.Stat()
	if err != nil {
		return nil, err
	}
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(fh, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &File{
		Name: filepath.Base(path),
		Size: info.Size(),
		head: head[:n],
		open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// NewStreamFile returns a file read once from r, of unknown size.
func NewStreamFile(name string, r io.Reader) (*File, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	head = head[:n]
	var once sync.Once
	return &File{
		Name: name,
		Size: -1,
		head: head,
		open: func() (io.ReadCloser, error) {
			var rc io.ReadCloser
			once.Do(func() {
				rc = io.NopCloser(io.MultiReader(bytes.NewReader(head), r))
			})
			if rc == nil {
				return nil, ErrFileConsumed
			}
			return rc, nil
		},
	}, nil
}

// Open returns the file content.
func (f *File) Open() (io.ReadCloser, error) {
	if f.open == nil {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return f.open()
}

// ContentType returns the declared MIME type, else the type detected from
// the content, else DefaultMimeType.
func (f *File) ContentType() string {
	if f.MimeType != "" {
		return f.MimeType
	}
	kind, err := filetype.Match(f.head)
	if err != nil || kind == filetype.Unknown {
		return DefaultMimeType
	}
	return kind.MIME.Value
}

// MarshalJSON describes the file without its content.
func (f *File) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	return json.Marshal(map[string]any{
		"name":      f.Name,
		"mimeType":  f.ContentType(),
		"sizeBytes": f.Size,
	})
}

func prefix(b []byte, n int) []byte {
	if len(b) < n {
		return b
	}
	return b[:n]
}

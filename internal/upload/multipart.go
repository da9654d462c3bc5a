package upload

import (
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strconv"
)

// Part names of the multipart encoding.
const (
	BodyPartName   = "body"
	FilePartPrefix = "file"
)

// Body is a streaming multipart request body.
type Body struct {
	ContentType string
	Size        int64 // -1 when some file size is unknown
	r           *io.PipeReader
}

// Read implements io.Reader.
func (b *Body) Read(p []byte) (int, error) { return b.r.Read(p) }

// Close stops the producer. It is safe to call after the body was read.
func (b *Body) Close() error { return b.r.Close() }

// NewMultipartBody builds a body with part "body" holding envelope and parts
// "file0".."fileN-1" holding files in order. Files are opened and copied
// while the body is read.
func NewMultipartBody(envelope []byte, files []*File) *Body {
	boundary := multipart.NewWriter(io.Discard).Boundary()

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeParts(pw, boundary, envelope, files, true))
	}()

	return &Body{
		ContentType: "multipart/form-data; boundary=" + boundary,
		Size:        measure(boundary, envelope, files),
		r:           pr,
	}
}

// measure computes the encoded length by writing the part headers around
// placeholders of the right size. The boundary is fixed, so the result is
// exact.
func measure(boundary string, envelope []byte, files []*File) int64 {
	var extra int64
	for _, f := range files {
		if f.Size < 0 {
			return -1
		}
		extra += f.Size
	}
	cw := &countingWriter{}
	if err := writeParts(cw, boundary, envelope, files, false); err != nil {
		return -1
	}
	return cw.n + extra
}

func writeParts(w io.Writer, boundary string, envelope []byte, files []*File, withContent bool) error {
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(boundary); err != nil {
		return err
	}

	part, err := mw.CreatePart(partHeader(BodyPartName, "", "application/json"))
	if err != nil {
		return err
	}
	if _, err := part.Write(envelope); err != nil {
		return err
	}

	for i, f := range files {
		name := FilePartPrefix + strconv.Itoa(i)
		filename := f.Name
		if filename == "" {
			// file parts always carry a filename
			filename = name
		}
		part, err := mw.CreatePart(partHeader(name, filename, f.ContentType()))
		if err != nil {
			return err
		}
		if !withContent {
			continue
		}
		if err := copyFile(part, f); err != nil {
			return err
		}
	}
	return mw.Close()
}

func copyFile(w io.Writer, f *File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(w, rc)
	return err
}

func partHeader(name, filename, contentType string) textproto.MIMEHeader {
	params := map[string]string{"name": name}
	if filename != "" {
		params["filename"] = filename
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", params))
	h.Set("Content-Type", contentType)
	return h
}

type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

package validation

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngHead  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpegHead = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")
	pdfHead  = []byte("%PDF-1.7\n")
	zipHead  = []byte("PK\x03\x04\x14\x00\x06\x00")
	oleHead  = []byte("\xd0\xcf\x11\xe0\xa1\xb1\x1a\xe1")
)

// formFile builds a real multipart file so Open works on it.
func formFile(t *testing.T, name, contentType string, head []byte, size int) *multipart.FileHeader {
	t.Helper()
	body := make([]byte, size)
	copy(body, head)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, name))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(8 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["files"][0]
}

func TestValidateGalleryFile(t *testing.T) {
	tests := []struct {
		name string
		file *multipart.FileHeader
		want error
	}{
		{name: "nil", file: nil, want: ErrFileRequired},
		{name: "png", file: formFile(t, "a.png", "image/png", pngHead, 1024)},
		{name: "pdf", file: formFile(t, "cv.pdf", "application/pdf", pdfHead, 1024)},
		{name: "docx by mime", file: formFile(t, "x", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", zipHead, 10)},
		{name: "doc by extension", file: formFile(t, "brochure.DOC", "application/octet-stream", oleHead, 10)},
		{name: "exactly 2MB", file: formFile(t, "a.jpg", "image/jpeg", jpegHead, MaxGalleryFileSize)},
		{name: "too large", file: formFile(t, "a.jpg", "image/jpeg", jpegHead, MaxGalleryFileSize+1), want: ErrFileSize},
		{name: "exe", file: formFile(t, "a.exe", "application/x-msdownload", []byte("MZ"), 10), want: ErrFileType},
		{name: "svg", file: formFile(t, "a.svg", "image/svg+xml", []byte("<svg/>"), 10), want: ErrFileType},
		{name: "html named png", file: formFile(t, "a.png", "image/png", []byte("<html><script>alert(1)</script>"), 64), want: ErrFileType},
		{name: "binary named jpg", file: formFile(t, "a.jpg", "image/jpeg", []byte("MZ\x90\x00"), 64), want: ErrFileType},
		{name: "zip named pdf", file: formFile(t, "a.pdf", "application/pdf", zipHead, 64), want: ErrFileType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGalleryFile(tt.file)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestSniffContent(t *testing.T) {
	got, err := SniffContent("a.png", "image/png", pngHead)
	require.NoError(t, err)
	assert.Equal(t, "image/png", got)

	got, err = SniffContent("scan.pdf", "", pdfHead)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", got)

	_, err = SniffContent("notes.txt", "text/plain", []byte("plain words"))
	assert.ErrorIs(t, err, ErrFileType)
}

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("image/png", "a.png"))
	assert.True(t, IsImage("", "photo.JPG"))
	assert.False(t, IsImage("application/pdf", "a.pdf"))
}

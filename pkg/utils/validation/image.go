// pkg/utils/validation/image.go
package validation

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
)

var (
	ErrFileSize     = errors.New("file size exceeds limit of 2MB")
	ErrFileType     = errors.New("invalid file type. Allowed types: images, PDF, DOC, DOCX")
	ErrFileRequired = errors.New("no file provided")
)

const MaxGalleryFileSize = 2 * 1024 * 1024 // 2MB

// sniffLen is how much of a file http.DetectContentType looks at.
const sniffLen = 512

var AllowedDocumentTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

var AllowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".pdf":  true,
	".doc":  true,
	".docx": true,
}

// IsAllowedType accepts any image/* MIME, the document MIME types, or a
// whitelisted extension when the MIME type is missing or generic.
func IsAllowedType(contentType, filename string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "image/svg+xml" {
		return false
	}
	if strings.HasPrefix(ct, "image/") || AllowedDocumentTypes[ct] {
		return true
	}
	return AllowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// IsImage reports whether the upload should be treated as a photo.
func IsImage(contentType, filename string) bool {
	if strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return true
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	}
	return false
}

func ValidateFile(filename, contentType string, size int64) error {
	if size > MaxGalleryFileSize {
		return ErrFileSize
	}
	if !IsAllowedType(contentType, filename) {
		return ErrFileType
	}
	return nil
}

func ValidateGalleryFile(file *multipart.FileHeader) error {
	if file == nil {
		return ErrFileRequired
	}
	if err := ValidateFile(file.Filename, file.Header.Get("Content-Type"), file.Size); err != nil {
		return fmt.Errorf("%s: %w", file.Filename, err)
	}
	if _, err := SniffFile(file); err != nil {
		return fmt.Errorf("%s: %w", file.Filename, err)
	}
	return nil
}

func isWordFile(contentType, filename string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct != "application/pdf" && AllowedDocumentTypes[ct] {
		return true
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".doc", ".docx":
		return true
	}
	return false
}

// SniffFile reads the head of an upload and checks it with SniffContent.
func SniffFile(file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return SniffContent(file.Filename, file.Header.Get("Content-Type"), head[:n])
}

// SniffContent detects the real type of head and rejects scriptable content
// or content that does not match what the upload claims to be. Word files
// sniff as zip or octet-stream, so those are accepted by extension only.
func SniffContent(filename, contentType string, head []byte) (string, error) {
	detected := http.DetectContentType(head)
	if i := strings.IndexByte(detected, ';'); i >= 0 {
		detected = strings.TrimSpace(detected[:i])
	}

	switch {
	case detected == "image/svg+xml", strings.HasPrefix(detected, "text/"),
		strings.Contains(detected, "xml"):
		return "", ErrFileType
	case strings.HasPrefix(detected, "image/"):
		return detected, nil
	case IsImage(contentType, filename):
		return "", ErrFileType
	case detected == "application/pdf":
		return detected, nil
	case detected == "application/zip", detected == "application/octet-stream":
		if isWordFile(contentType, filename) {
			return detected, nil
		}
	}
	return "", ErrFileType
}

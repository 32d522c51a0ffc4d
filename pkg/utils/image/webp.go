package image

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"

	"github.com/chai2010/webp"
)

const WebPQuality = 85

// ContentTypeWebP is what every re-encoded photo is stored as.
const ContentTypeWebP = "image/webp"

// Reencodable reports whether a content type is a raster photo that goes
// through ToWebP. SVGs and documents are stored untouched.
func Reencodable(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return true
	}
	return false
}

// ToWebP decodes an uploaded photo and re-encodes it as lossy webp.
func ToWebP(file *multipart.FileHeader) (*bytes.Buffer, error) {
	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	defer src.Close()
	return EncodeWebP(src)
}

func EncodeWebP(r io.Reader) (*bytes.Buffer, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("could not decode image: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := webp.Encode(buf, img, &webp.Options{Lossless: false, Quality: WebPQuality}); err != nil {
		return nil, fmt.Errorf("could not encode image: %w", err)
	}
	return buf, nil
}

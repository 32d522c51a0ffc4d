// Package qr renders the business card QR code as a PNG.
package qr

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	MinSize     = 128
	MaxSize     = 1024
	DefaultSize = 256
)

var ErrInvalidStyle = errors.New("invalid qr style")

// Style is what a user may customise. The zero value renders the default.
type Style struct {
	Foreground string `json:"foreground" validate:"omitempty,hexcolor"`
	Background string `json:"background" validate:"omitempty,hexcolor"`
	Size       int    `json:"size" validate:"omitempty,min=128,max=1024"`
	Recovery   string `json:"recovery" validate:"omitempty,oneof=low medium high highest"`
}

func DefaultStyle() Style {
	return Style{Foreground: "#000000", Background: "#ffffff", Size: DefaultSize, Recovery: "medium"}
}

// WithDefaults fills blank fields from DefaultStyle.
func (s Style) WithDefaults() Style {
	d := DefaultStyle()
	if strings.TrimSpace(s.Foreground) == "" {
		s.Foreground = d.Foreground
	}
	if strings.TrimSpace(s.Background) == "" {
		s.Background = d.Background
	}
	if s.Size == 0 {
		s.Size = d.Size
	}
	if strings.TrimSpace(s.Recovery) == "" {
		s.Recovery = d.Recovery
	}
	return s
}

func (s Style) Validate() error {
	s = s.WithDefaults()
	if s.Size < MinSize || s.Size > MaxSize {
		return fmt.Errorf("%w: size must be between %d and %d", ErrInvalidStyle, MinSize, MaxSize)
	}
	fg, err := ParseHexColor(s.Foreground)
	if err != nil {
		return err
	}
	bg, err := ParseHexColor(s.Background)
	if err != nil {
		return err
	}
	if _, err := recoveryLevel(s.Recovery); err != nil {
		return err
	}
	if fg == bg {
		return fmt.Errorf("%w: foreground and background must differ", ErrInvalidStyle)
	}
	return nil
}

func recoveryLevel(name string) (qrcode.RecoveryLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "low":
		return qrcode.Low, nil
	case "", "medium":
		return qrcode.Medium, nil
	case "high":
		return qrcode.High, nil
	case "highest":
		return qrcode.Highest, nil
	default:
		return qrcode.Medium, fmt.Errorf("%w: unknown recovery level %q", ErrInvalidStyle, name)
	}
}

// ParseHexColor accepts #rgb and #rrggbb.
func ParseHexColor(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("%w: bad colour %q", ErrInvalidStyle, s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("%w: bad colour %q", ErrInvalidStyle, s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// Render encodes content as a PNG using style.
func Render(content string, style Style) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: empty content", ErrInvalidStyle)
	}
	style = style.WithDefaults()
	if err := style.Validate(); err != nil {
		return nil, err
	}

	level, _ := recoveryLevel(style.Recovery)
	code, err := qrcode.New(content, level)
	if err != nil {
		return nil, fmt.Errorf("qr: encoding: %w", err)
	}
	code.ForegroundColor, _ = ParseHexColor(style.Foreground)
	code.BackgroundColor, _ = ParseHexColor(style.Background)

	return code.PNG(style.Size)
}

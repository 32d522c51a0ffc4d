// Package referral builds referral codes and share links.
package referral

import (
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

const prefixLen = 4

// NewCode returns a code like ASHA7F3K2Q: up to four letters taken from
// seed followed by six random characters.
func NewCode(seed string) string {
	prefix := strings.ToUpper(strings.ReplaceAll(slug.Make(seed), "-", ""))
	if len(prefix) > prefixLen {
		prefix = prefix[:prefixLen]
	}
	if prefix == "" {
		prefix = "QR"
	}
	random := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return prefix + random[:6]
}

// NormalizeCode trims and upper-cases user input.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ShareLink is the signup URL carrying the code.
func ShareLink(clientBaseURL, code string) string {
	u, err := url.Parse(strings.TrimRight(clientBaseURL, "/") + "/signup")
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("ref", code)
	u.RawQuery = q.Encode()
	return u.String()
}

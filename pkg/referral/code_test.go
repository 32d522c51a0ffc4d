package referral

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCode(t *testing.T) {
	code := NewCode("Asha Kumari")
	assert.Regexp(t, regexp.MustCompile(`^ASHA[0-9A-F]{6}$`), code)
	assert.NotEqual(t, code, NewCode("Asha Kumari"))

	assert.Regexp(t, regexp.MustCompile(`^JO[0-9A-F]{6}$`), NewCode("jo"))
	assert.Regexp(t, regexp.MustCompile(`^QR[0-9A-F]{6}$`), NewCode("!!!"))
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "ASHA12AB34", NormalizeCode("  asha12ab34 "))
}

func TestShareLink(t *testing.T) {
	assert.Equal(t, "https://qrcard.app/signup?ref=ASHA12AB34", ShareLink("https://qrcard.app/", "ASHA12AB34"))
}

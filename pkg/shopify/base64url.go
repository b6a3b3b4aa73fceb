package shopify

import (
	"encoding/base64"
	"strings"
)

// Base64URLEncode encodes with the URL alphabet and no padding, as JWT segments are.
func Base64URLEncode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// Base64URLDecode accepts both padded and unpadded input.
func Base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

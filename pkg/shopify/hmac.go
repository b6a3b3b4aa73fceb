package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"sort"
	"strings"
)

// Sign returns the raw HMAC-SHA256 of data under secret.
func Sign(data []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(data)
	return mac.Sum(nil)
}

func SignHex(data []byte, secret string) string {
	return hex.EncodeToString(Sign(data, secret))
}

func SignBase64(data []byte, secret string) string {
	return base64.StdEncoding.EncodeToString(Sign(data, secret))
}

// BuildQuery sorts params by key and renders each as key=value, list items
// joined with ",". Pairs are joined with "&" when join is set and
// concatenated otherwise.
func BuildQuery(params Params, join bool) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strings.Join(params[k].Items, ","))
	}
	sep := ""
	if join {
		sep = "&"
	}
	return strings.Join(parts, sep)
}

// VerifyRequest checks the "hmac" parameter of an OAuth-style request: the
// remaining parameters (without hmac and signature) are sorted, "&"-joined and
// signed, hex encoded.
func VerifyRequest(params Params, secret string) bool {
	given, ok := params.Get("hmac")
	if !ok || secret == "" {
		return false
	}
	msg := BuildQuery(params.Without("hmac", "signature"), true)
	return hmac.Equal([]byte(SignHex([]byte(msg), secret)), []byte(given))
}

// VerifyProxySignature checks the "signature" parameter of an app proxy
// request. Unlike VerifyRequest the pairs are concatenated without separator.
func VerifyProxySignature(params Params, secret string) bool {
	given, ok := params.Get("signature")
	if !ok || secret == "" {
		return false
	}
	msg := BuildQuery(params.Without("signature"), false)
	return hmac.Equal([]byte(SignHex([]byte(msg), secret)), []byte(given))
}

// VerifyWebhook verifies the webhook signature using the shared secret.
// Signature header is base64(HMAC_SHA256(body)).
func VerifyWebhook(body []byte, hmacHeader string, secret string) bool {
	if hmacHeader == "" || secret == "" {
		return false
	}
	return hmac.Equal([]byte(SignBase64(body, secret)), []byte(hmacHeader))
}

package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignHex_MatchesStdlib(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("hello"))
	mac.Write([]byte("one-two-three"))
	want := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, SignHex([]byte("one-two-three"), "hello"))
	assert.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), SignBase64([]byte("one-two-three"), "hello"))
}

func TestBuildQuery_SortedWithoutSeparator(t *testing.T) {
	p := Params{}
	p.Set("one", "1")
	p.Set("two", "2")
	p.Set("three", "3")

	assert.Equal(t, "one=1three=3two=2", BuildQuery(p, false))
	assert.Equal(t, "one=1&three=3&two=2", BuildQuery(p, true))
}

func TestBuildQuery_JoinsListsWithComma(t *testing.T) {
	p := Params{"ids": {Items: []string{"2", "1"}, List: true}}
	p.Set("shop", "a.myshopify.com")

	assert.Equal(t, "ids=2,1shop=a.myshopify.com", BuildQuery(p, false))
}

func TestBuildQuery_IndependentOfInsertionOrder(t *testing.T) {
	a := ParseQueryString("b=2&a=1&c=3")
	b := ParseQueryString("c=3&b=2&a=1")
	assert.Equal(t, BuildQuery(a, true), BuildQuery(b, true))
	assert.Equal(t, SignHex([]byte(BuildQuery(a, false)), "s"), SignHex([]byte(BuildQuery(b, false)), "s"))
}

func TestVerifyRequest(t *testing.T) {
	p := ParseQueryString("shop=a.myshopify.com&timestamp=1337178173&code=abc")
	p.Set("hmac", SignHex([]byte("code=abc&shop=a.myshopify.com&timestamp=1337178173"), "secret"))

	assert.True(t, VerifyRequest(p, "secret"))
	assert.False(t, VerifyRequest(p, "other"))

	p.Set("timestamp", "1337178174")
	assert.False(t, VerifyRequest(p, "secret"))

	assert.False(t, VerifyRequest(ParseQueryString("shop=a.myshopify.com"), "secret"))
}

func TestVerifyRequest_IgnoresSignatureParam(t *testing.T) {
	p := ParseQueryString("shop=a.myshopify.com&signature=whatever")
	p.Set("hmac", SignHex([]byte("shop=a.myshopify.com"), "secret"))
	assert.True(t, VerifyRequest(p, "secret"))
}

func TestVerifyProxySignature(t *testing.T) {
	p := ParseQueryString("shop=a.myshopify.com&path_prefix=%2Fapps%2Fx&timestamp=1&ids=1&ids=2")
	p.Set("signature", SignHex([]byte("ids=1,2path_prefix=/apps/xshop=a.myshopify.comtimestamp=1"), "secret"))

	assert.True(t, VerifyProxySignature(p, "secret"))
	assert.False(t, VerifyProxySignature(p.Without("signature"), "secret"))
}

func TestVerifyWebhook(t *testing.T) {
	body := []byte(`{"id":1}`)
	sig := SignBase64(body, "secret")

	assert.True(t, VerifyWebhook(body, sig, "secret"))
	assert.False(t, VerifyWebhook(body, sig, "other"))
	assert.False(t, VerifyWebhook([]byte(`{"id":2}`), sig, "secret"))
	assert.False(t, VerifyWebhook(body, "", "secret"))
}

package api

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"net/url"

	"shopifyapp/pkg/shopify"
)

// Data sources for the shop domain and its signature, in lookup order.
const (
	SourceInput   = "input"
	SourceHeader  = "header"
	SourceReferer = "referer"
)

const maxFormBody = 1 << 20

// InputParams merges the query string with an urlencoded POST body, body
// values winning. Both are decoded the way the platform signs them.
func InputParams(r *http.Request) shopify.Params {
	params := shopify.ParseQueryString(r.URL.RawQuery)
	if r.Method != http.MethodPost || r.Body == nil {
		return params
	}
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "application/x-www-form-urlencoded" {
		return params
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFormBody))
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return params
	}
	for k, v := range shopify.ParseQueryString(string(body)) {
		params[k] = v
	}
	return params
}

func refererParams(r *http.Request) shopify.Params {
	ref := r.Header.Get("Referer")
	if ref == "" {
		return shopify.Params{}
	}
	u, err := url.Parse(ref)
	if err != nil {
		return shopify.Params{}
	}
	return shopify.ParseQueryString(u.RawQuery)
}

// ShopDomain finds the shop a request is for: input, then the X-Shop-Domain
// header, then the Referer's query string. An invalid domain counts as none.
func ShopDomain(r *http.Request, input shopify.Params) (string, string) {
	if v, ok := input.Get("shop"); ok {
		return shopify.SanitizeShopDomain(v), SourceInput
	}
	if v := r.Header.Get("X-Shop-Domain"); v != "" {
		return shopify.SanitizeShopDomain(v), SourceHeader
	}
	if v, ok := refererParams(r).Get("shop"); ok {
		return shopify.SanitizeShopDomain(v), SourceReferer
	}
	return "", ""
}

// SignatureSource finds the request's hmac, with the same precedence as
// ShopDomain, and returns the parameter set it was computed over. Only the
// winning source contributes parameters.
func SignatureSource(r *http.Request, input shopify.Params) (string, shopify.Params, bool) {
	if _, ok := input.Get("hmac"); ok {
		query := shopify.ParseQueryString(r.URL.RawQuery)
		return SourceInput, shopify.CanonicalParams(query).Formatted(), true
	}
	if v := r.Header.Get("X-Shop-Signature"); v != "" {
		return SourceHeader, headerParams(r), true
	}
	ref := refererParams(r)
	if _, ok := ref.Get("hmac"); ok {
		return SourceReferer, shopify.CanonicalParams(ref).Formatted(), true
	}
	return "", nil, false
}

func headerParams(r *http.Request) shopify.Params {
	p := shopify.Params{}
	p.Set("shop", r.Header.Get("X-Shop-Domain"))
	p.Set("hmac", r.Header.Get("X-Shop-Signature"))
	p.Set("timestamp", r.Header.Get("X-Shop-Time"))
	for key, header := range map[string]string{
		"code":   "X-Shop-Code",
		"locale": "X-Shop-Locale",
		"state":  "X-Shop-State",
		"id":     "X-Shop-ID",
		"ids":    "X-Shop-IDs",
	} {
		if v := r.Header.Get(header); v != "" {
			p.Set(key, v)
		}
	}
	return p
}

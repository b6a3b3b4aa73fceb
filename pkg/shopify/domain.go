package shopify

import (
	"regexp"
	"strings"
)

var shopDomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]*\.myshopify\.(com|io)$`)

// SanitizeShopDomain normalizes user supplied shop identifiers ("my-shop",
// "https://My-Shop.myshopify.com/admin") into "my-shop.myshopify.com".
// It returns "" when the input cannot be a shop domain.
func SanitizeShopDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if d == "" {
		return ""
	}
	if !strings.Contains(d, ".") {
		d += ".myshopify.com"
	}
	if !shopDomainPattern.MatchString(d) {
		return ""
	}
	return d
}

package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"shopifyapp/pkg/config"
	"shopifyapp/pkg/shopify"
)

func main() {
	cfg := config.Load()

	var (
		base      = flag.String("base", "", "app base url (defaults to http://localhost<HTTP_ADDR>)")
		typ       = flag.String("type", "app-uninstalled", "webhook type, used as the /webhook/{type} segment")
		shop      = flag.String("shop", "example.myshopify.com", "X-Shopify-Shop-Domain")
		secret    = flag.String("secret", "", "signing secret (defaults to the shop's configured API secret)")
		payload   = flag.String("payload", "", "path to json payload file (defaults to {})")
		webhookID = flag.String("id", "", "X-Shopify-Webhook-Id (random when empty)")
	)
	flag.Parse()

	if *base == "" {
		addr := cfg.HTTPAddr
		if strings.HasPrefix(addr, ":") {
			addr = "localhost" + addr
		}
		*base = "http://" + addr
	}
	if *secret == "" {
		_, *secret = cfg.Shopify.CredentialsFor(shopify.SanitizeShopDomain(*shop))
	}
	if *secret == "" {
		fmt.Fprintln(os.Stderr, "missing -secret and SHOPIFY_API_SECRET")
		os.Exit(2)
	}
	if *webhookID == "" {
		*webhookID = uuid.NewString()
	}

	b := []byte("{}")
	if *payload != "" {
		var err error
		if b, err = os.ReadFile(*payload); err != nil {
			fmt.Fprintf(os.Stderr, "read payload: %v\n", err)
			os.Exit(2)
		}
	}

	url := strings.TrimRight(*base, "/") + "/webhook/" + *typ
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		fmt.Fprintf(os.Stderr, "new request: %v\n", err)
		os.Exit(2)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Topic", strings.ReplaceAll(*typ, "-", "/"))
	req.Header.Set("X-Shopify-Shop-Domain", *shop)
	req.Header.Set("X-Shopify-Hmac-Sha256", shopify.SignBase64(b, *secret))
	req.Header.Set("X-Shopify-Webhook-Id", *webhookID)

	c := &http.Client{Timeout: 10 * time.Second}
	resp, err := c.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "post: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("status=%d\n%s\n", resp.StatusCode, string(body))
}

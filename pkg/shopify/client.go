package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shopifyapp/pkg/config"
)

// API is the slice of the Admin API the app depends on.
type API interface {
	BuildAuthURL(mode string, scopes []string, state string) string
	GetAccessData(ctx context.Context, code string) (*AccessData, error)

	ActivateCharge(ctx context.Context, t ChargeType, chargeID int64) (*Charge, error)
	CreateCharge(ctx context.Context, t ChargeType, details ChargeDetails) (*Charge, error)
	GetCharge(ctx context.Context, t ChargeType, chargeID int64) (*Charge, error)
	CancelCharge(ctx context.Context, t ChargeType, chargeID int64) error
	CreateUsageCharge(ctx context.Context, recurringChargeID int64, details UsageChargeDetails) (*Charge, error)

	VerifyRequest(params Params) bool

	ListWebhooks(ctx context.Context) ([]Webhook, error)
	CreateWebhook(ctx context.Context, topic string, address string) error
	ListScriptTags(ctx context.Context) ([]ScriptTag, error)
	CreateScriptTag(ctx context.Context, src string, event string) error
}

// ClientFactory builds a client bound to one shop and token.
type ClientFactory func(shopDomain, accessToken string) API

type Client struct {
	HTTPClient  *http.Client
	ShopDomain  string
	AccessToken string
	APIVersion  string

	APIKey      string
	APISecret   string
	RedirectURL string

	// BaseURL replaces https://{ShopDomain} when set (local stubs, tests).
	BaseURL string
}

var _ API = Client{}

// NewClientFactory returns a ClientFactory sharing one HTTP client whose
// timeout bounds every Admin API call.
func NewClientFactory(cfg config.Config) ClientFactory {
	hc := &http.Client{Timeout: cfg.Shopify.APITimeout}
	redirect := cfg.AppURL + cfg.Shopify.RedirectPath
	return func(shopDomain, accessToken string) API {
		key, secret := cfg.Shopify.CredentialsFor(shopDomain)
		return Client{
			HTTPClient:  hc,
			ShopDomain:  shopDomain,
			AccessToken: accessToken,
			APIVersion:  cfg.Shopify.APIVersion,
			APIKey:      key,
			APISecret:   secret,
			RedirectURL: redirect,
		}
	}
}

// APIError carries a non-2xx Admin API response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("shopify api error: status=%d body=%s", e.Status, e.Body)
	}
	return fmt.Sprintf("shopify api error: status=%d", e.Status)
}

func (c Client) VerifyRequest(params Params) bool {
	return VerifyRequest(params, c.APISecret)
}

func (c Client) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return "https://" + c.ShopDomain
}

func (c Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return &http.Client{Timeout: 20 * time.Second}
	}
	return c.HTTPClient
}

func (c Client) doJSON(ctx context.Context, method, path string, reqBody any, respBody any) (int, error) {
	if c.APIVersion == "" {
		c.APIVersion = "2025-10"
	}
	if c.ShopDomain == "" || c.AccessToken == "" {
		return 0, fmt.Errorf("missing shop domain or access token")
	}

	var buf bytes.Buffer
	if reqBody != nil {
		if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
			return 0, err
		}
	}

	u := fmt.Sprintf("%s/admin/api/%s%s", c.baseURL(), c.APIVersion, path)
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.AccessToken)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	b, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return resp.StatusCode, readErr
	}

	// Surface Shopify error body for non-2xx, so callers can see missing scopes, etc.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &APIError{Status: resp.StatusCode, Body: string(b)}
	}

	if respBody != nil && len(b) > 0 {
		if err := json.Unmarshal(b, respBody); err != nil {
			// Include body for easier debugging (unexpected shape, partial responses, etc).
			return resp.StatusCode, fmt.Errorf("decode shopify response failed: %w body=%s", err, string(b))
		}
	}

	return resp.StatusCode, nil
}

// Package esign is a small client for the e-signature provider's template API.
// Only the calls the template editor needs are implemented; envelopes and the
// provider's signing workflow are handled by the provider itself.
package esign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/avissapr/advisordesk/internal/schema"
)

// ErrNotConfigured is returned by a Client built without a base URL.
var ErrNotConfigured = errors.New("e-signature provider not configured")

// Config holds the provider endpoint and OAuth2 client credentials.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	AccountID    string
	Scopes       []string
	Timeout      time.Duration
}

// Template is a reusable document template stored at the provider.
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	PageCount int       `json:"pageCount"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Tab is one signer-facing field on a provider template.
type Tab struct {
	Label    string  `json:"label"`
	Type     string  `json:"type"`
	Page     int     `json:"page"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Required bool    `json:"required"`
	Value    string  `json:"value,omitempty"`
}

// TabGroup is the set of tabs assigned to one recipient role.
type TabGroup struct {
	RecipientRole string `json:"recipientRole"`
	Tabs          []Tab  `json:"tabs"`
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("e-signature provider returned %d: %s", e.StatusCode, e.Message)
}

// Client calls the provider API with an OAuth2 client-credentials token.
type Client struct {
	http    *http.Client
	baseURL string
	account string
}

// NewClient builds a client. The token is fetched lazily on the first call
// and refreshed by the oauth2 transport.
func NewClient(ctx context.Context, cfg Config) *Client {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	httpClient := cc.Client(ctx)
	if cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		account: cfg.AccountID,
	}
}

// ListTemplates returns every template of the configured account.
func (c *Client) ListTemplates(ctx context.Context) ([]Template, error) {
	var body struct {
		Templates []Template `json:"templates"`
	}
	if err := c.get(ctx, "templates", &body); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return body.Templates, nil
}

// GetTemplateTabs returns the tabs of one template grouped by recipient role.
func (c *Client) GetTemplateTabs(ctx context.Context, templateType, templateID string) ([]TabGroup, error) {
	var body struct {
		TabGroups []TabGroup `json:"tabGroups"`
	}
	p := "templates/" + url.PathEscape(templateType) + "/" + url.PathEscape(templateID) + "/tabs"
	if err := c.get(ctx, p, &body); err != nil {
		return nil, fmt.Errorf("failed to get tabs for template %s: %w", templateID, err)
	}
	return body.TabGroups, nil
}

func (c *Client) get(ctx context.Context, p string, out any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}
	u := c.baseURL + "/accounts/" + url.PathEscape(c.account) + "/" + p

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// tabTypes maps provider tab types onto overlay types.
var tabTypes = map[string]schema.OverlayType{
	"signHere":    schema.OverlaySignature,
	"initialHere": schema.OverlayInitials,
	"text":        schema.OverlayText,
	"dateSigned":  schema.OverlayDate,
	"date":        schema.OverlayDate,
	"checkbox":    schema.OverlayCheckbox,
	"radio":       schema.OverlayRadio,
}

// ToOverlays converts provider tabs into overlay fields so a provider template
// can seed a PDF form schema. Tabs of unsupported types are returned in skipped.
func ToOverlays(groups []TabGroup) (fields []*schema.OverlayField, skipped []Tab) {
	for _, g := range groups {
		for _, tab := range g.Tabs {
			typ, ok := tabTypes[tab.Type]
			if !ok || tab.Page < 1 {
				skipped = append(skipped, tab)
				continue
			}
			f := &schema.OverlayField{
				ID:       uuid.New().String(),
				Type:     typ,
				FieldKey: tab.Label,
				Overlay: schema.OverlayRect{
					Page:   tab.Page,
					X:      tab.X,
					Y:      tab.Y,
					Width:  tab.Width,
					Height: tab.Height,
				},
			}
			if g.RecipientRole != "" || tab.Value != "" {
				f.Custom = &schema.OverlayCustom{Signer: g.RecipientRole}
				if typ == schema.OverlayRadio {
					f.Custom.RadioButtonValue = tab.Value
				}
			}
			fields = append(fields, f)
		}
	}
	return fields, skipped
}

package marketing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ms-fulfillment/internal/config"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
)

const apiRevision = "2024-02-15"

// ProfileCache is the advisory local record of known profile IDs. Cache
// failures are logged and ignored; the provider is authoritative.
type ProfileCache interface {
	GetProfileID(ctx context.Context, email string) (string, error)
	SaveProfile(ctx context.Context, profile models.MarketingProfile) error
}

// Client talks to the Klaviyo REST API. Everything here is best effort
// from the fulfillment workflow's point of view: SyncCustomer swallows
// every failure.
type Client struct {
	httpClient *http.Client
	cfg        config.KlaviyoConfig
	cache      ProfileCache
	logger     *logger.Logger
}

func NewClient(httpClient *http.Client, cfg config.KlaviyoConfig, cache ProfileCache, log *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		cache:      cache,
		logger:     log,
	}
}

type profileAttributes struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
}

type profileData struct {
	Type       string            `json:"type"`
	ID         string            `json:"id,omitempty"`
	Attributes profileAttributes `json:"attributes"`
}

// filterEscaper keeps quotes and backslashes in a value from breaking
// out of the filter expression's string literal.
var filterEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// FindProfile looks a profile up by email. Returns nil when no profile
// exists.
func (c *Client) FindProfile(ctx context.Context, email string) (*models.MarketingProfile, error) {
	filter := fmt.Sprintf(`equals(email,"%s")`, filterEscaper.Replace(email))
	endpoint := fmt.Sprintf("%s/api/profiles/?filter=%s", c.cfg.BaseURL, url.QueryEscape(filter))

	var result struct {
		Data []profileData `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return nil, nil
	}

	return &models.MarketingProfile{
		ID:        result.Data[0].ID,
		Email:     result.Data[0].Attributes.Email,
		FirstName: result.Data[0].Attributes.FirstName,
	}, nil
}

// CreateProfile registers a new profile keyed by email.
func (c *Client) CreateProfile(ctx context.Context, name, email string) (*models.MarketingProfile, error) {
	body := map[string]profileData{
		"data": {
			Type: "profile",
			Attributes: profileAttributes{
				Email:     email,
				FirstName: name,
			},
		},
	}

	var result struct {
		Data profileData `json:"data"`
	}
	endpoint := c.cfg.BaseURL + "/api/profiles/"
	if err := c.do(ctx, http.MethodPost, endpoint, body, &result); err != nil {
		return nil, err
	}

	return &models.MarketingProfile{
		ID:        result.Data.ID,
		Email:     email,
		FirstName: name,
	}, nil
}

// AddToList subscribes an existing profile to the marketing list.
func (c *Client) AddToList(ctx context.Context, profileID, listID string) error {
	body := map[string][]map[string]string{
		"data": {
			{"type": "profile", "id": profileID},
		},
	}
	endpoint := fmt.Sprintf("%s/api/lists/%s/relationships/profiles/", c.cfg.BaseURL, listID)
	return c.do(ctx, http.MethodPost, endpoint, body, nil)
}

// SyncCustomer registers the customer and adds them to the configured
// list. Every failure is logged and swallowed here; nothing propagates
// to the fulfillment workflow.
func (c *Client) SyncCustomer(ctx context.Context, name, email string) {
	profileID := c.lookupCached(ctx, email)

	if profileID == "" {
		profile, err := c.FindProfile(ctx, email)
		if err != nil {
			c.logger.Warn("MARKETING", fmt.Sprintf("Profile lookup for %s failed: %v", email, err))
			return
		}
		if profile == nil {
			profile, err = c.CreateProfile(ctx, name, email)
			if err != nil {
				c.logger.Warn("MARKETING", fmt.Sprintf("Profile creation for %s failed: %v", email, err))
				return
			}
		}
		profileID = profile.ID
		c.storeCached(ctx, *profile)
	}

	if c.cfg.ListID == "" {
		return
	}
	if err := c.AddToList(ctx, profileID, c.cfg.ListID); err != nil {
		c.logger.Warn("MARKETING", fmt.Sprintf("Adding %s to list %s failed: %v", email, c.cfg.ListID, err))
		return
	}

	c.logger.Info("MARKETING", fmt.Sprintf("Synced %s to list %s", email, c.cfg.ListID))
}

func (c *Client) lookupCached(ctx context.Context, email string) string {
	if c.cache == nil {
		return ""
	}
	id, err := c.cache.GetProfileID(ctx, email)
	if err != nil {
		c.logger.Debug("MARKETING", fmt.Sprintf("Profile cache miss for %s: %v", email, err))
		return ""
	}
	return id
}

func (c *Client) storeCached(ctx context.Context, profile models.MarketingProfile) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SaveProfile(ctx, profile); err != nil {
		c.logger.Debug("MARKETING", fmt.Sprintf("Profile cache write for %s failed: %v", profile.Email, err))
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create marketing request: %w", err)
	}
	req.Header.Set("Authorization", "Klaviyo-API-Key "+c.cfg.APIKey)
	req.Header.Set("revision", apiRevision)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("marketing API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("marketing API status %d: %s", resp.StatusCode, string(raw))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

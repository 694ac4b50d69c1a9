// Package gateway talks to the mobile-money payment aggregator: credential
// exchange and caching, channel health checks, charge submission with bounded
// retry, and webhook signature verification.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ArmelNjike/MomoBill/internal/pkg/env"
)

// credentialExpiryBuffer keeps us from returning a token that would expire
// mid-flight.
const credentialExpiryBuffer = 60 * time.Second

// defaultTokenTTL applies when the aggregator omits expires_in.
const defaultTokenTTL = 3000 * time.Second

type credential struct {
	token     string
	expiresAt time.Time
}

// Client is the aggregator HTTP client. One instance is shared per process so
// the credential cache is shared across all charge initiations.
type Client struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	HMACSecret   string
	CallbackURL  string

	HTTPClient *http.Client

	mu     sync.Mutex
	cached *credential

	retry RetryPolicy
	now   func() time.Time
}

// ChargeRequest is one charge submission.
type ChargeRequest struct {
	Phone    string            `json:"phone"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Channel  string            `json:"network"`
	Callback string            `json:"callback_url"`
	Metadata map[string]string `json:"metadata"`
}

// ChargeResult is the aggregator's synchronous answer to a charge submission.
// The terminal outcome arrives later via webhook.
type ChargeResult struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// NewClientFromEnv builds the client from the aggregator configuration.
func NewClientFromEnv() *Client {
	return &Client{
		BaseURL:      strings.TrimRight(strings.TrimSpace(env.GetEnv("NKWA_BASE_URL", "")), "/"),
		ClientID:     strings.TrimSpace(env.GetEnv("NKWA_CLIENT_ID", "")),
		ClientSecret: strings.TrimSpace(env.GetEnv("NKWA_CLIENT_SECRET", "")),
		HMACSecret:   strings.TrimSpace(env.GetEnv("NKWA_HMAC_SECRET", "")),
		CallbackURL:  strings.TrimSpace(env.GetEnv("PAYMENT_CALLBACK_URL", "")),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry: DefaultRetryPolicy(),
	}
}

func (c *Client) timeNow() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Credential returns a cached access token, exchanging client credentials for
// a fresh one when the cached token is within 60 seconds of expiry. Two
// callers racing past the expiry check may both exchange; the cache cell
// itself is mutex-protected.
func (c *Client) Credential(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.cached != nil && c.cached.expiresAt.After(c.timeNow().Add(credentialExpiryBuffer)) {
		token := c.cached.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	if c.ClientID == "" || c.ClientSecret == "" {
		return "", errors.New("NKWA_CLIENT_ID/NKWA_CLIENT_SECRET are not configured")
	}

	form := url.Values{}
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("credential exchange failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return "", errors.New("credential exchange returned empty access_token")
	}

	ttl := defaultTokenTTL
	if out.ExpiresIn > 0 {
		ttl = time.Duration(out.ExpiresIn) * time.Second
	}

	c.mu.Lock()
	c.cached = &credential{token: out.AccessToken, expiresAt: c.timeNow().Add(ttl)}
	c.mu.Unlock()

	return out.AccessToken, nil
}

// CheckAvailability queries the channel-health endpoint. A failure of the
// check itself must never block charge traffic, so any transport or parse
// error reports the channel as available. An explicit "offline" from a
// successful check gates the charge.
func (c *Client) CheckAvailability(ctx context.Context, channel string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/availability", nil)
	if err != nil {
		return true
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return true
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return true
	}

	var statuses map[string]string
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&statuses); err != nil {
		return true
	}

	return statuses[strings.ToLower(strings.TrimSpace(channel))] != "offline"
}

// RequestCharge submits a charge behind the retry policy. Any transport error
// or non-2xx response is retryable; the last attempt's error text propagates
// when the schedule is exhausted.
func (c *Client) RequestCharge(ctx context.Context, in ChargeRequest) (*ChargeResult, error) {
	token, err := c.Credential(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	var result *ChargeResult
	err = c.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/payments/request", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient().Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("gateway error: %s", strings.TrimSpace(string(body)))
		}

		var out ChargeResult
		if err := json.Unmarshal(body, &out); err != nil {
			return err
		}
		if out.Status == "" {
			out.Status = "PENDING"
		}
		result = &out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PaymentStatus polls the aggregator for the current status of a charge.
func (c *Client) PaymentStatus(ctx context.Context, reference string) (string, error) {
	token, err := c.Credential(ctx)
	if err != nil {
		return "", err
	}

	var status string
	err = c.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/payments/status/"+url.PathEscape(reference), nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient().Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("status query failed: status=%d body=%s", resp.StatusCode, string(body))
		}

		var out struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return err
		}
		status = out.Status
		if status == "" {
			status = "PENDING"
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

// VerifySignature checks an inbound webhook against the shared HMAC secret.
func (c *Client) VerifySignature(payload []byte, signatureHeader string) bool {
	return VerifyWebhookSignature(payload, signatureHeader, c.HMACSecret)
}

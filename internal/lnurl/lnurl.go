// Package lnurl resolves Lightning Addresses (user@domain, LUD-16) to
// BOLT11 invoices and encodes plain URLs as bech32 LNURL strings (LUD-01).
package lnurl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"sathunt/pkg/logger"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"go.uber.org/zap"
)

var (
	ErrInvalidFormat    = errors.New("invalid LN address format")
	ErrResolutionFailed = errors.New("failed to resolve LN address")
	ErrAmountOutOfRange = errors.New("amount out of range")
	ErrInvalidResponse  = errors.New("invalid LNURL-pay response")
)

// PayResponse is the LNURL-pay metadata document (LUD-06).
type PayResponse struct {
	Callback       string `json:"callback"`
	MinSendable    int64  `json:"minSendable"`
	MaxSendable    int64  `json:"maxSendable"`
	Metadata       string `json:"metadata"`
	Tag            string `json:"tag"`
	CommentAllowed int64  `json:"commentAllowed,omitempty"`
}

type payCallbackResponse struct {
	PR            string          `json:"pr"`
	Routes        json.RawMessage `json:"routes,omitempty"`
	SuccessAction json.RawMessage `json:"successAction,omitempty"`
}

type errorResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Client resolves Lightning Addresses over HTTP.
type Client struct {
	httpClient *http.Client
}

func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{httpClient: httpClient}
}

// ParseAddress splits a Lightning Address into its user and domain parts.
func ParseAddress(address string) (user, domain string, err error) {
	address = strings.ToLower(strings.TrimSpace(address))
	parts := strings.Split(address, "@")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: must be in format user@domain", ErrInvalidFormat)
	}

	user, domain = parts[0], parts[1]
	if user == "" {
		return "", "", fmt.Errorf("%w: user part is empty", ErrInvalidFormat)
	}
	if domain == "" || !strings.Contains(domain, ".") {
		return "", "", fmt.Errorf("%w: domain must be a valid hostname", ErrInvalidFormat)
	}
	return user, domain, nil
}

// Resolve fetches the LNURL-pay metadata for a Lightning Address from
// https://{domain}/.well-known/lnurlp/{user}.
func (c *Client) Resolve(ctx context.Context, address string) (*PayResponse, error) {
	user, domain, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("https://%s/.well-known/lnurlp/%s", domain, user)
	logger.Info("resolving LN address", zap.String("user", user), zap.String("domain", domain))

	var payResp PayResponse
	if err := fetchJSON(ctx, c.httpClient, url, &payResp); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrResolutionFailed, err)
	}

	if payResp.Tag != "payRequest" {
		return nil, fmt.Errorf("%w: expected tag payRequest, got %q", ErrInvalidResponse, payResp.Tag)
	}
	return &payResp, nil
}

// Invoice requests a BOLT11 invoice from an LNURL-pay callback for a given
// amount in millisatoshis.
func (c *Client) Invoice(ctx context.Context, callbackURL string, amountMsats int64) (string, error) {
	sep := "?"
	if strings.Contains(callbackURL, "?") {
		sep = "&"
	}
	url := fmt.Sprintf("%s%samount=%d", callbackURL, sep, amountMsats)

	logger.Info("requesting invoice from LNURL callback", zap.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrResolutionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil && errResp.Reason != "" {
			return "", fmt.Errorf("%w: %s", ErrResolutionFailed, errResp.Reason)
		}
		return "", fmt.Errorf("%w: HTTP %d", ErrResolutionFailed, resp.StatusCode)
	}

	var cbResp payCallbackResponse
	if err := json.NewDecoder(resp.Body).Decode(&cbResp); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidResponse, err)
	}
	if cbResp.PR == "" {
		return "", fmt.Errorf("%w: empty payment request", ErrInvalidResponse)
	}
	return cbResp.PR, nil
}

// InvoiceForAddress resolves a Lightning Address and requests an invoice
// for amountMsats in one call, validating the amount against the
// recipient's advertised min/max.
func (c *Client) InvoiceForAddress(ctx context.Context, address string, amountMsats int64) (string, error) {
	payResp, err := c.Resolve(ctx, address)
	if err != nil {
		return "", err
	}

	if amountMsats < payResp.MinSendable || amountMsats > payResp.MaxSendable {
		return "", fmt.Errorf("%w: %d msats (min %d, max %d)",
			ErrAmountOutOfRange, amountMsats, payResp.MinSendable, payResp.MaxSendable)
	}

	return c.Invoice(ctx, payResp.Callback, amountMsats)
}

func fetchJSON(ctx context.Context, client *http.Client, url string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("lnurl fetch failed", zap.String("url", url), zap.Error(err))
		return fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Error("lnurl endpoint returned error", zap.String("url", url), zap.Int("status", resp.StatusCode))
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		logger.Error("lnurl response decode failed", zap.String("url", url), zap.Error(err))
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// Encode renders a plain URL as an uppercase bech32 LNURL string (LUD-01).
// LNURL uses standard bech32 (not bech32m), unlike BOLT11/BOLT12.
func Encode(url string) (string, error) {
	conv, err := bech32.ConvertBits([]byte(url), 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("failed to convert bits: %w", err)
	}
	encoded, err := bech32.Encode("lnurl", conv)
	if err != nil {
		return "", fmt.Errorf("failed to encode bech32: %w", err)
	}
	return strings.ToUpper(encoded), nil
}

// Decode reverses Encode, returning the original URL string.
func Decode(lnurlStr string) (string, error) {
	hrp, data, err := bech32.DecodeNoLimit(strings.ToLower(lnurlStr))
	if err != nil {
		return "", fmt.Errorf("failed to decode bech32: %w", err)
	}
	if hrp != "lnurl" {
		return "", fmt.Errorf("%w: unexpected hrp %q", ErrInvalidFormat, hrp)
	}
	conv, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("failed to convert bits: %w", err)
	}
	return string(conv), nil
}

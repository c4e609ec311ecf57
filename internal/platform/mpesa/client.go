// Package mpesa is a small client for Safaricom's Daraja API: OAuth token
// retrieval and Lipa na M-Pesa Online (STK push).
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/groot/groot/internal/platform/telemetry"
)

const (
	oauthPath        = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath      = "/mpesa/stkpush/v1/processrequest"
	transactionType  = "CustomerPayBillOnline"
	transactionDesc  = "Cyst Treatment Payment"
	timestampLayout  = "20060102150405"
	tokenExpirySlack = time.Minute
)

var (
	// ErrNotConfigured means the shortcode, passkey or callback URL is missing.
	ErrNotConfigured = errors.New("M-Pesa is not configured")
	// ErrNoCredentials means no access token was supplied and no consumer
	// key/secret pair is configured to fetch one.
	ErrNoCredentials = errors.New("M-Pesa consumer credentials not configured")
)

// APIError is a non-2xx answer from Daraja.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daraja: status %d: %s", e.StatusCode, e.Body)
}

// Config holds Daraja credentials and the paybill details.
type Config struct {
	BaseURL          string
	ConsumerKey      string
	ConsumerSecret   string
	Shortcode        string
	Passkey          string
	CallbackURL      string
	AccountReference string
}

// Client calls Daraja. Access tokens are cached until a minute before they
// expire.
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.Shortcode == "" || cfg.Passkey == "" || cfg.CallbackURL == "" {
		return nil, ErrNotConfigured
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://sandbox.safaricom.co.ke"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.AccountReference == "" {
		cfg.AccountReference = "OvarianCyst"
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}, nil
}

// Password returns base64(shortcode + passkey + timestamp) and the
// timestamp used, formatted YYYYMMDDHHMMSS.
func (c *Client) Password(at time.Time) (password, timestamp string) {
	timestamp = at.Format(timestampLayout)
	raw := c.cfg.Shortcode + c.cfg.Passkey + timestamp
	return base64.StdEncoding.EncodeToString([]byte(raw)), timestamp
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// AccessToken returns a cached OAuth token, fetching a new one when the
// cached token is missing or about to expire.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if c.cfg.ConsumerKey == "" || c.cfg.ConsumerSecret == "" {
		return "", ErrNoCredentials
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+oauthPath, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	var tr tokenResponse
	if err := c.do(req, "daraja.oauth", &tr); err != nil {
		return "", err
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("daraja: empty access token")
	}

	ttl := time.Hour
	var secs int
	if _, err := fmt.Sscanf(tr.ExpiresIn, "%d", &secs); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	c.token = tr.AccessToken
	c.tokenExpiry = c.now().Add(ttl - tokenExpirySlack)
	return c.token, nil
}

// STKPushRequest is the Daraja processrequest body.
type STKPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int    `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPushResponse is Daraja's synchronous acknowledgement.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// BuildSTKPush assembles the request body for phone and amount at time at.
func (c *Client) BuildSTKPush(phone string, amount int, at time.Time) STKPushRequest {
	password, ts := c.Password(at)
	return STKPushRequest{
		BusinessShortCode: c.cfg.Shortcode,
		Password:          password,
		Timestamp:         ts,
		TransactionType:   transactionType,
		Amount:            amount,
		PartyA:            phone,
		PartyB:            c.cfg.Shortcode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  c.cfg.AccountReference,
		TransactionDesc:   transactionDesc,
	}
}

// STKPush prompts phone to pay amount. When accessToken is empty a token is
// obtained through AccessToken.
func (c *Client) STKPush(ctx context.Context, phone string, amount int, accessToken string) (*STKPushResponse, error) {
	if accessToken == "" {
		tok, err := c.AccessToken(ctx)
		if err != nil {
			return nil, err
		}
		accessToken = tok
	}

	body, err := json.Marshal(c.BuildSTKPush(phone, amount, c.now()))
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+stkPushPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	var out STKPushResponse
	if err := c.do(req, "daraja.stk_push", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(req *http.Request, spanName string, out any) (err error) {
	ctx, span := telemetry.StartClientSpan(req.Context(), spanName,
		attribute.String("server.address", req.URL.Host))
	defer func() { telemetry.EndSpan(span, err) }()

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("daraja: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("daraja: decode response: %w", err)
	}
	return nil
}

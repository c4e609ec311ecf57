package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
		Shortcode:      "174379",
		Passkey:        "passkey",
		CallbackURL:    "https://groot.example/payments/callback",
	}
}

func TestNewClient_RequiresConfig(t *testing.T) {
	if _, err := NewClient(Config{Shortcode: "174379"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestPassword(t *testing.T) {
	c, _ := NewClient(testConfig(""))
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

	pw, ts := c.Password(at)
	if ts != "20250304050607" {
		t.Errorf("unexpected timestamp %s", ts)
	}
	raw, err := base64.StdEncoding.DecodeString(pw)
	if err != nil {
		t.Fatalf("password is not base64: %v", err)
	}
	if string(raw) != "174379passkey20250304050607" {
		t.Errorf("unexpected password payload %q", raw)
	}
}

func TestBuildSTKPush(t *testing.T) {
	c, _ := NewClient(testConfig(""))
	req := c.BuildSTKPush("254712345678", 500, time.Now())

	if req.TransactionType != "CustomerPayBillOnline" || req.TransactionDesc != "Cyst Treatment Payment" {
		t.Errorf("unexpected constants %+v", req)
	}
	if req.PartyA != "254712345678" || req.PhoneNumber != "254712345678" || req.PartyB != "174379" {
		t.Errorf("unexpected parties %+v", req)
	}
	if req.AccountReference != "OvarianCyst" {
		t.Errorf("expected default account reference, got %q", req.AccountReference)
	}
}

func TestSTKPush_FetchesAndCachesToken(t *testing.T) {
	var oauthCalls, pushCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/v1/generate":
			atomic.AddInt32(&oauthCalls, 1)
			user, pass, ok := r.BasicAuth()
			if !ok || user != "ck" || pass != "cs" {
				t.Errorf("bad basic auth")
			}
			_, _ = w.Write([]byte(`{"access_token":"tok-1","expires_in":"3599"}`))
		case "/mpesa/stkpush/v1/processrequest":
			atomic.AddInt32(&pushCalls, 1)
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
			}
			var body STKPushRequest
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Amount != 100 {
				t.Errorf("unexpected amount %d", body.Amount)
			}
			_, _ = w.Write([]byte(`{"MerchantRequestID":"m-1","CheckoutRequestID":"ws_CO_1","ResponseCode":"0","ResponseDescription":"Success. Request accepted for processing","CustomerMessage":"Success"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, _ := NewClient(testConfig(srv.URL))
	for i := 0; i < 2; i++ {
		resp, err := c.STKPush(context.Background(), "254712345678", 100, "")
		if err != nil {
			t.Fatalf("stk push: %v", err)
		}
		if resp.CheckoutRequestID != "ws_CO_1" {
			t.Errorf("unexpected response %+v", resp)
		}
	}
	if oauthCalls != 1 || pushCalls != 2 {
		t.Errorf("expected 1 oauth and 2 push calls, got %d and %d", oauthCalls, pushCalls)
	}
}

func TestSTKPush_UsesSuppliedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mpesa/stkpush/v1/processrequest" {
			t.Errorf("unexpected call to %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer caller-token" {
			t.Errorf("expected caller token")
		}
		_, _ = w.Write([]byte(`{"CheckoutRequestID":"ws_CO_2","ResponseCode":"0"}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.ConsumerKey, cfg.ConsumerSecret = "", ""
	c, _ := NewClient(cfg)
	if _, err := c.STKPush(context.Background(), "254712345678", 1, "caller-token"); err != nil {
		t.Fatalf("stk push: %v", err)
	}
}

func TestSTKPush_NoCredentials(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.ConsumerKey = ""
	c, _ := NewClient(cfg)
	if _, err := c.STKPush(context.Background(), "254712345678", 1, ""); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestSTKPush_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errorCode":"400.002.02","errorMessage":"Bad Request - Invalid Amount"}`))
	}))
	defer srv.Close()

	c, _ := NewClient(testConfig(srv.URL))
	_, err := c.STKPush(context.Background(), "254712345678", 1, "tok")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected APIError 400, got %v", err)
	}
}

func TestParseCallback(t *testing.T) {
	body := []byte(`{"Body":{"stkCallback":{
		"MerchantRequestID":"m-1","CheckoutRequestID":"ws_CO_1","ResultCode":0,
		"ResultDesc":"The service request is processed successfully.",
		"CallbackMetadata":{"Item":[
			{"Name":"Amount","Value":100.00},
			{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},
			{"Name":"Balance"},
			{"Name":"PhoneNumber","Value":254712345678}
		]}}}}`)

	cb, err := ParseCallback(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s := cb.Body.STKCallback
	if !s.Succeeded() {
		t.Error("expected success")
	}
	if s.Receipt() != "NLJ7RT61SV" {
		t.Errorf("unexpected receipt %q", s.Receipt())
	}
	if s.Amount() != 100 {
		t.Errorf("unexpected amount %d", s.Amount())
	}
	if s.Item("PhoneNumber") != "254712345678" {
		t.Errorf("unexpected phone %q", s.Item("PhoneNumber"))
	}
	if s.Item("Balance") != "" {
		t.Errorf("expected empty balance")
	}
}

func TestParseCallback_Cancelled(t *testing.T) {
	cb, err := ParseCallback([]byte(`{"Body":{"stkCallback":{"MerchantRequestID":"m","CheckoutRequestID":"c","ResultCode":1032,"ResultDesc":"Request cancelled by user"}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cb.Body.STKCallback.Succeeded() || cb.Body.STKCallback.Receipt() != "" {
		t.Errorf("expected failed callback without receipt")
	}
}

func TestParseCallback_Invalid(t *testing.T) {
	for _, body := range []string{`not json`, `{"Body":{"stkCallback":{}}}`} {
		if _, err := ParseCallback([]byte(body)); err == nil {
			t.Errorf("expected error for %s", body)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0712345678", "254712345678", false},
		{"+254712345678", "254712345678", false},
		{"254712345678", "254712345678", false},
		{"0112345678", "254112345678", false},
		{"712345678", "254712345678", false},
		{"0712 345-678", "254712345678", false},
		{"0212345678", "", true},
		{"07123", "", true},
		{"07123456ab", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizePhone(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, %v; want %q, err=%v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

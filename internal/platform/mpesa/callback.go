package mpesa

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Callback is the body Safaricom POSTs to CallBackURL once the customer
// completes or cancels the STK prompt.
type Callback struct {
	Body struct {
		STKCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type CallbackMetadata struct {
	Item []CallbackItem `json:"Item"`
}

// CallbackItem values are numbers or strings depending on Name.
type CallbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}

// Succeeded reports whether the customer paid.
func (s STKCallback) Succeeded() bool {
	return s.ResultCode == 0
}

// Item returns the named metadata value as a string, or "" when absent.
func (s STKCallback) Item(name string) string {
	if s.CallbackMetadata == nil {
		return ""
	}
	for _, it := range s.CallbackMetadata.Item {
		if it.Name != name || len(it.Value) == 0 {
			continue
		}
		var str string
		if err := json.Unmarshal(it.Value, &str); err == nil {
			return str
		}
		var num json.Number
		if err := json.Unmarshal(it.Value, &num); err == nil {
			return num.String()
		}
		return string(it.Value)
	}
	return ""
}

// Receipt returns the MpesaReceiptNumber, if present.
func (s STKCallback) Receipt() string {
	return s.Item("MpesaReceiptNumber")
}

// ParseCallback decodes and minimally validates a callback body.
func ParseCallback(data []byte) (*Callback, error) {
	var cb Callback
	if err := json.Unmarshal(data, &cb); err != nil {
		return nil, fmt.Errorf("decode callback: %w", err)
	}
	if cb.Body.STKCallback.CheckoutRequestID == "" {
		return nil, fmt.Errorf("callback missing CheckoutRequestID")
	}
	return &cb, nil
}

// Amount returns the paid amount from the metadata, or 0.
func (s STKCallback) Amount() int {
	v := s.Item("Amount")
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return int(f)
}

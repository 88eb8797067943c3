package payment

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tawsil/internal/types"
)

var merchant = MerchantConfig{
	MerchantID: "m-42",
	Currency:   "MAD",
	ReturnURL:  "https://pay.example.ma/return",
	FailURL:    "https://pay.example.ma/fail?lang=fr",
}

func TestBuildPaymentRequest(t *testing.T) {
	req, err := BuildPaymentRequest("o1", 11800, merchant)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if req.Amount != 11800 || req.Currency != "MAD" || req.MerchantID != "m-42" {
		t.Fatalf("unexpected request %+v", req)
	}
	if !strings.Contains(req.ReturnURL, "order_id=o1") || !strings.Contains(req.FailURL, "lang=fr") {
		t.Fatalf("urls not decorated: %s %s", req.ReturnURL, req.FailURL)
	}

	tests := []struct {
		name    string
		orderID types.ID
		amount  int64
		mutate  func(*MerchantConfig)
	}{
		{"empty order", "", 100, nil},
		{"zero amount", "o1", 0, nil},
		{"bad currency", "o1", 100, func(c *MerchantConfig) { c.Currency = "dirham" }},
		{"relative return url", "o1", 100, func(c *MerchantConfig) { c.ReturnURL = "/return" }},
		{"no merchant", "o1", 100, func(c *MerchantConfig) { c.MerchantID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := merchant
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			_, err := BuildPaymentRequest(tt.orderID, tt.amount, cfg)
			var ve *types.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestValidateGatewayResponse(t *testing.T) {
	req, _ := BuildPaymentRequest("o1", 100, merchant)
	tests := []struct {
		name string
		resp Response
		ok   bool
	}{
		{"approved", Response{Status: StatusApproved, AuthorizationCode: "A1", OrderID: "o1"}, true},
		{"declined without code", Response{Status: StatusDeclined}, true},
		{"pending", Response{Status: StatusPending}, true},
		{"approved without code", Response{Status: StatusApproved}, false},
		{"unknown status", Response{Status: "ok"}, false},
		{"other order", Response{Status: StatusError, OrderID: "o2"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGatewayResponse(req, tt.resp)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidResponse) {
				t.Fatalf("expected ErrInvalidResponse, got %v", err)
			}
		})
	}
}

type stubGateway struct {
	resp Response
	err  error
	got  Request
}

func (g *stubGateway) Submit(_ context.Context, req Request) (Response, error) {
	g.got = req
	return g.resp, g.err
}

func TestCharge(t *testing.T) {
	gw := &stubGateway{resp: Response{Status: StatusApproved, AuthorizationCode: "X", OrderID: "o1"}}
	resp, err := Charge(context.Background(), gw, "o1", 500, merchant)
	if err != nil || resp.Status != StatusApproved || gw.got.Amount != 500 {
		t.Fatalf("charge: %+v %v", resp, err)
	}

	gw = &stubGateway{err: errors.New("timeout")}
	if _, err := Charge(context.Background(), gw, "o1", 500, merchant); err == nil {
		t.Fatal("expected gateway error")
	}
}

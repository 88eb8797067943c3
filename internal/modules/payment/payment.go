// README: Payment gateway capability: request preparation and response shape checks. No network calls.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"

	"tawsil/internal/types"
)

var ErrInvalidResponse = errors.New("invalid gateway response")

type Status string

const (
	StatusApproved Status = "approved"
	StatusDeclined Status = "declined"
	StatusPending  Status = "pending"
	StatusError    Status = "error"
)

func (s Status) Valid() bool {
	switch s {
	case StatusApproved, StatusDeclined, StatusPending, StatusError:
		return true
	}
	return false
}

// Request amounts are minor currency units.
type Request struct {
	MerchantID string   `json:"merchant_id"`
	Amount     int64    `json:"amount"`
	Currency   string   `json:"currency"`
	OrderID    types.ID `json:"order_id"`
	ReturnURL  string   `json:"return_url"`
	FailURL    string   `json:"fail_url"`
}

type Response struct {
	Status            Status   `json:"status"`
	AuthorizationCode string   `json:"authorization_code"`
	OrderID           types.ID `json:"order_id"`
	Message           string   `json:"message,omitempty"`
}

// Gateway is implemented outside this repository. Retries belong there too.
type Gateway interface {
	Submit(ctx context.Context, req Request) (Response, error)
}

type MerchantConfig struct {
	MerchantID string
	Currency   string
	ReturnURL  string
	FailURL    string
}

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

// BuildPaymentRequest prepares the gateway request for an order charge.
func BuildPaymentRequest(orderID types.ID, amount int64, cfg MerchantConfig) (Request, error) {
	switch {
	case orderID == "":
		return Request{}, types.Invalid("order_id", "must not be empty")
	case amount <= 0:
		return Request{}, types.Invalid("amount", "must be positive, got %d", amount)
	case cfg.MerchantID == "":
		return Request{}, types.Invalid("merchant_id", "must not be empty")
	case !currencyCode.MatchString(cfg.Currency):
		return Request{}, types.Invalid("currency", "%q is not an ISO 4217 code", cfg.Currency)
	}
	returnURL, err := withOrder(cfg.ReturnURL, orderID)
	if err != nil {
		return Request{}, types.Invalid("return_url", "%v", err)
	}
	failURL, err := withOrder(cfg.FailURL, orderID)
	if err != nil {
		return Request{}, types.Invalid("fail_url", "%v", err)
	}
	return Request{
		MerchantID: cfg.MerchantID,
		Amount:     amount,
		Currency:   cfg.Currency,
		OrderID:    orderID,
		ReturnURL:  returnURL,
		FailURL:    failURL,
	}, nil
}

func withOrder(raw string, orderID types.ID) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return "", fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	q := u.Query()
	q.Set("order_id", string(orderID))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ValidateGatewayResponse checks only the shape of a response for req.
func ValidateGatewayResponse(req Request, resp Response) error {
	if !resp.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidResponse, resp.Status)
	}
	if resp.OrderID != "" && resp.OrderID != req.OrderID {
		return fmt.Errorf("%w: order %s does not match request %s", ErrInvalidResponse, resp.OrderID, req.OrderID)
	}
	if resp.Status == StatusApproved && resp.AuthorizationCode == "" {
		return fmt.Errorf("%w: approved without authorization code", ErrInvalidResponse)
	}
	return nil
}

// Charge builds, submits and validates one payment.
func Charge(ctx context.Context, gw Gateway, orderID types.ID, amount int64, cfg MerchantConfig) (Response, error) {
	req, err := BuildPaymentRequest(orderID, amount, cfg)
	if err != nil {
		return Response{}, err
	}
	resp, err := gw.Submit(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("submit payment %s: %w", orderID, err)
	}
	if err := ValidateGatewayResponse(req, resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}

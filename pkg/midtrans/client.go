package midtrans

import (
	"bytes"
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/edulink-id/studyfair-backend/pkg/config"
	pkgerrors "github.com/edulink-id/studyfair-backend/pkg/errors"
	"github.com/edulink-id/studyfair-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// Client is a thin adapter over the gateway's Snap and status APIs. Every
// call carries the configured bounded timeout through the underlying HTTP
// client; an unreachable gateway surfaces as a DEPENDENCY_ERROR instead of
// blocking the caller.
type Client struct {
	serverKey   string
	apiBaseURL  string
	snapBaseURL string
	httpClient  *http.Client
}

// NewClient validates configuration and builds the gateway adapter.
func NewClient(ctx context.Context, cfg config.MidtransConfig, logg *logger.Logger) (*Client, error) {
	serverKey := strings.TrimSpace(cfg.ServerKey)
	if serverKey == "" {
		return nil, fmt.Errorf("midtrans server key is required")
	}
	if cfg.APIBaseURL == "" || cfg.SnapBaseURL == "" {
		return nil, fmt.Errorf("midtrans base urls are required")
	}

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("payment gateway client initialized (%s)", cfg.APIBaseURL))
	}

	return &Client{
		serverKey:   serverKey,
		apiBaseURL:  strings.TrimRight(cfg.APIBaseURL, "/"),
		snapBaseURL: strings.TrimRight(cfg.SnapBaseURL, "/"),
		httpClient:  &http.Client{Timeout: cfg.HTTPTimeout},
	}, nil
}

// SnapParams describe a Snap transaction to open for a booking.
type SnapParams struct {
	OrderID         string
	GrossAmount     decimal.Decimal
	EnabledPayments []string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
}

// SnapResult carries the issued token and hosted payment page URL.
type SnapResult struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// TransactionStatus is the gateway's view of one transaction.
type TransactionStatus struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	TransactionTime   string `json:"transaction_time"`
}

type snapRequest struct {
	TransactionDetails struct {
		OrderID     string `json:"order_id"`
		GrossAmount string `json:"gross_amount"`
	} `json:"transaction_details"`
	EnabledPayments []string `json:"enabled_payments,omitempty"`
	CustomerDetails struct {
		FirstName string `json:"first_name,omitempty"`
		Email     string `json:"email,omitempty"`
		Phone     string `json:"phone,omitempty"`
	} `json:"customer_details"`
}

// CreateSnapTransaction opens a new gateway transaction and returns its token.
func (c *Client) CreateSnapTransaction(ctx context.Context, params SnapParams) (*SnapResult, error) {
	if params.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	var body snapRequest
	body.TransactionDetails.OrderID = params.OrderID
	body.TransactionDetails.GrossAmount = params.GrossAmount.StringFixed(2)
	body.EnabledPayments = params.EnabledPayments
	body.CustomerDetails.FirstName = params.CustomerName
	body.CustomerDetails.Email = params.CustomerEmail
	body.CustomerDetails.Phone = params.CustomerPhone

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode snap request")
	}

	url := c.snapBaseURL + "/snap/v1/transactions"
	respBody, status, err := c.do(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, gatewayError(status, respBody, "create snap transaction")
	}

	var result SnapResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode snap response")
	}
	if result.Token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway returned no token")
	}
	return &result, nil
}

// GetTransactionStatus fetches the gateway's current view of a transaction.
func (c *Client) GetTransactionStatus(ctx context.Context, orderID string) (*TransactionStatus, error) {
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	url := fmt.Sprintf("%s/v2/%s/status", c.apiBaseURL, orderID)
	respBody, status, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found at gateway")
	}
	if status != http.StatusOK {
		return nil, gatewayError(status, respBody, "fetch transaction status")
	}

	var result TransactionStatus
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode status response")
	}
	return &result, nil
}

// RedirectURL builds the hosted payment page URL for a Snap token.
func (c *Client) RedirectURL(token string) string {
	return c.snapBaseURL + "/snap/v2/vtweb/" + token
}

// VerifySignature checks the keyed hash the gateway attaches to webhook
// payloads: SHA-512 over order_id + status_code + gross_amount + server key,
// compared in constant time.
func (c *Client) VerifySignature(orderID, statusCode, grossAmount, signature string) bool {
	if signature == "" {
		return false
	}
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + c.serverKey))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(signature)), []byte(expected)) == 1
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build gateway request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.serverKey+":")))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway unreachable")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read gateway response")
	}
	return respBody, resp.StatusCode, nil
}

func gatewayError(status int, body []byte, op string) error {
	msg := fmt.Sprintf("%s: gateway responded %d", op, status)
	err := pkgerrors.New(pkgerrors.CodeDependency, msg)
	if len(body) > 0 {
		var details map[string]any
		if json.Unmarshal(body, &details) == nil {
			err = err.WithDetails(details)
		}
	}
	return err
}

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	errors "github.com/gardenfresh/order-payments/internal"
)

// Gateway response codes. Anything other than codeSuccess is a rejection;
// duplicate-code and bad-params get typed errors so callers can retry with
// adjusted input.
const (
	codeSuccess        = "00"
	codeDuplicateOrder = "231"
	codeInvalidParams  = "20"
)

var (
	// ErrDuplicateOrderCode is returned when the gateway already holds a
	// payment request for the submitted order code.
	ErrDuplicateOrderCode = errors.NewConflictError("gateway rejected duplicate order code", errors.ErrCodeDuplicateCode)
	// ErrInvalidParams is returned for parameter rejections, typically an
	// overlong or malformed description.
	ErrInvalidParams = errors.NewValidationError("gateway rejected request parameters", errors.ErrCodeGatewayBadParams)
)

type Config struct {
	BaseURL        string
	ClientID       string
	APIKey         string
	ChecksumSecret string
	ReturnURL      string
	CancelURL      string
	RequestTimeout time.Duration
}

// Client talks to the QR payment gateway's checkout API. Every request is
// signed with the same HMAC scheme the gateway uses for its webhooks.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type CreateLinkRequest struct {
	OrderCode   int64
	Amount      int64
	Description string
}

// CheckoutLink is the artifact the client renders: a hosted checkout URL
// and/or an inline QR payload.
type CheckoutLink struct {
	PaymentLinkID string
	CheckoutURL   string
	QRCode        string
	Amount        int64
}

type createLinkPayload struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	ReturnURL   string `json:"returnUrl"`
	CancelURL   string `json:"cancelUrl"`
	Signature   string `json:"signature"`
}

type createLinkResponse struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
	Data struct {
		PaymentLinkID string `json:"paymentLinkId"`
		CheckoutURL   string `json:"checkoutUrl"`
		QRCode        string `json:"qrCode"`
		Amount        int64  `json:"amount"`
	} `json:"data"`
}

// CreatePaymentLink requests a checkout/QR artifact for an order code. The
// request signature covers amount, cancelUrl, description, orderCode and
// returnUrl joined in that fixed key order.
func (c *Client) CreatePaymentLink(ctx context.Context, req CreateLinkRequest) (*CheckoutLink, error) {
	canonical := fmt.Sprintf("amount=%d&cancelUrl=%s&description=%s&orderCode=%d&returnUrl=%s",
		req.Amount, c.cfg.CancelURL, req.Description, req.OrderCode, c.cfg.ReturnURL)

	payload := createLinkPayload{
		OrderCode:   req.OrderCode,
		Amount:      req.Amount,
		Description: req.Description,
		ReturnURL:   c.cfg.ReturnURL,
		CancelURL:   c.cfg.CancelURL,
		Signature:   SignCanonical(canonical, c.cfg.ChecksumSecret),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payment link request: %w", err)
	}

	url := c.cfg.BaseURL + "/v2/payment-requests"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create payment link request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-client-id", c.cfg.ClientID)
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)

	c.logger.Info("requesting payment link",
		"order_code", req.OrderCode,
		"amount", req.Amount)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("payment link request failed", "error", err, "order_code", req.OrderCode)
		return nil, errors.NewExternalError("payment gateway unreachable", errors.ErrCodeGatewayUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("gateway returned error status",
			"status", resp.StatusCode,
			"response", string(respBody),
			"order_code", req.OrderCode)
		return nil, errors.NewExternalError(
			fmt.Sprintf("gateway HTTP %d", resp.StatusCode), errors.ErrCodeGatewayRejected, nil)
	}

	var linkResp createLinkResponse
	if err := json.Unmarshal(respBody, &linkResp); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}

	switch linkResp.Code {
	case codeSuccess:
	case codeDuplicateOrder:
		c.logger.Warn("gateway rejected duplicate order code",
			"order_code", req.OrderCode, "desc", linkResp.Desc)
		return nil, ErrDuplicateOrderCode
	case codeInvalidParams:
		c.logger.Warn("gateway rejected request parameters",
			"order_code", req.OrderCode, "desc", linkResp.Desc)
		return nil, ErrInvalidParams
	default:
		c.logger.Error("gateway rejected payment link request",
			"code", linkResp.Code, "desc", linkResp.Desc, "order_code", req.OrderCode)
		return nil, errors.NewExternalError(
			fmt.Sprintf("gateway rejected request: %s %s", linkResp.Code, linkResp.Desc),
			errors.ErrCodeGatewayRejected, nil)
	}

	c.logger.Info("payment link created",
		"order_code", req.OrderCode,
		"payment_link_id", linkResp.Data.PaymentLinkID)

	return &CheckoutLink{
		PaymentLinkID: linkResp.Data.PaymentLinkID,
		CheckoutURL:   linkResp.Data.CheckoutURL,
		QRCode:        linkResp.Data.QRCode,
		Amount:        linkResp.Data.Amount,
	}, nil
}

package mercadopago

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
)

// Payment statuses returned by Mercado Pago
const (
	StatusApproved  = "approved"
	StatusPending   = "pending"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

// Config holds Mercado Pago API configuration
type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// Client represents the Mercado Pago payment gateway client
type Client struct {
	httpClient *http.Client
	config     Config
}

// Payer identifies the paying user for a PIX charge
type Payer struct {
	Email     string
	FirstName string
	LastName  string
	CPF       string
}

// CreatePixRequest represents a PIX payment creation request
type CreatePixRequest struct {
	AmountCents       int64  // BRL minor units
	Description       string
	Payer             Payer
	ExternalReference string // our transaction id
	ExpiresAt         time.Time
}

// PixPayment is the subset of the payment resource the service needs
type PixPayment struct {
	PaymentID         int64
	Status            string
	StatusDetail      string
	QRCode            string
	QRCodeBase64      string
	TicketURL         string
	ExternalReference string
	ExpiresAt         time.Time
}

// PaymentStatus represents the polled state of an existing payment
type PaymentStatus struct {
	PaymentID         int64  `json:"id"`
	Status            string `json:"status"`
	StatusDetail      string `json:"status_detail"`
	TransactionAmount float64 `json:"transaction_amount"`
	ExternalReference string `json:"external_reference"`
	DateApproved      string `json:"date_approved"`
}

// Approved reports whether the provider settled this payment.
func (p *PaymentStatus) Approved() bool {
	return p != nil && p.Status == StatusApproved
}

// NewClient creates a new Mercado Pago API client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		config:     cfg,
	}
}

type pixPaymentBody struct {
	TransactionAmount float64   `json:"transaction_amount"`
	Description       string    `json:"description"`
	PaymentMethodID   string    `json:"payment_method_id"`
	Payer             payerBody `json:"payer"`
	ExternalReference string    `json:"external_reference"`
	DateOfExpiration  string    `json:"date_of_expiration,omitempty"`
}

type payerBody struct {
	Email          string             `json:"email"`
	FirstName      string             `json:"first_name,omitempty"`
	LastName       string             `json:"last_name,omitempty"`
	Identification identificationBody `json:"identification"`
}

type identificationBody struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

type paymentResource struct {
	ID                 int64   `json:"id"`
	Status             string  `json:"status"`
	StatusDetail       string  `json:"status_detail"`
	TransactionAmount  float64 `json:"transaction_amount"`
	ExternalReference  string  `json:"external_reference"`
	DateApproved       string  `json:"date_approved"`
	Message            string  `json:"message"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
			TicketURL    string `json:"ticket_url"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

// CreatePixPayment creates a PIX charge and returns the QR artifact.
// The external reference ties the provider payment back to our transaction.
func (c *Client) CreatePixPayment(ctx context.Context, req CreatePixRequest) (*PixPayment, error) {
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("validation error: amount must be > 0")
	}
	if strings.TrimSpace(req.ExternalReference) == "" {
		return nil, fmt.Errorf("validation error: external_reference must be non-empty")
	}
	if c == nil || c.httpClient == nil {
		return nil, fmt.Errorf("mercadopago client is not initialized")
	}
	if strings.TrimSpace(c.config.AccessToken) == "" {
		return nil, fmt.Errorf("mercadopago config error: access_token is empty")
	}

	body := pixPaymentBody{
		TransactionAmount: float64(req.AmountCents) / 100,
		Description:       req.Description,
		PaymentMethodID:   "pix",
		Payer: payerBody{
			Email:     req.Payer.Email,
			FirstName: req.Payer.FirstName,
			LastName:  req.Payer.LastName,
			Identification: identificationBody{
				Type:   "CPF",
				Number: normalizeCPF(req.Payer.CPF),
			},
		},
		ExternalReference: req.ExternalReference,
	}
	if !req.ExpiresAt.IsZero() {
		body.DateOfExpiration = req.ExpiresAt.UTC().Format("2006-01-02T15:04:05.000-07:00")
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode mercadopago request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/payments"), bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to build mercadopago request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
	// PIX creation is retried by callers; the provider dedupes on this key.
	httpReq.Header.Set("X-Idempotency-Key", req.ExternalReference)

	resource, status, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		msg := resource.Message
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %d", status)
		}
		return nil, fmt.Errorf("mercadopago: create pix payment failed: %s", msg)
	}

	return &PixPayment{
		PaymentID:         resource.ID,
		Status:            resource.Status,
		StatusDetail:      resource.StatusDetail,
		QRCode:            resource.PointOfInteraction.TransactionData.QRCode,
		QRCodeBase64:      resource.PointOfInteraction.TransactionData.QRCodeBase64,
		TicketURL:         resource.PointOfInteraction.TransactionData.TicketURL,
		ExternalReference: resource.ExternalReference,
		ExpiresAt:         req.ExpiresAt,
	}, nil
}

// GetPayment retrieves the current status of a payment by provider id
func (c *Client) GetPayment(ctx context.Context, paymentID int64) (*PaymentStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(fmt.Sprintf("/v1/payments/%d", paymentID)), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build mercadopago request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.config.AccessToken)

	resource, status, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("mercadopago: get payment %d failed with status %d", paymentID, status)
	}

	return &PaymentStatus{
		PaymentID:         resource.ID,
		Status:            resource.Status,
		StatusDetail:      resource.StatusDetail,
		TransactionAmount: resource.TransactionAmount,
		ExternalReference: resource.ExternalReference,
		DateApproved:      resource.DateApproved,
	}, nil
}

// SearchByReference finds a payment by our external reference
func (c *Client) SearchByReference(ctx context.Context, externalReference string) (*PaymentStatus, error) {
	q := url.Values{}
	q.Set("external_reference", externalReference)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/v1/payments/search")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build mercadopago request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.config.AccessToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("mercadopago request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mercadopago: search failed with status %d", resp.StatusCode)
	}

	var out struct {
		Results []paymentResource `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode mercadopago response: %w", err)
	}
	if len(out.Results) == 0 {
		return nil, nil
	}

	first := out.Results[0]
	return &PaymentStatus{
		PaymentID:         first.ID,
		Status:            first.Status,
		StatusDetail:      first.StatusDetail,
		TransactionAmount: first.TransactionAmount,
		ExternalReference: first.ExternalReference,
		DateApproved:      first.DateApproved,
	}, nil
}

func (c *Client) endpoint(path string) string {
	base := strings.TrimRight(c.config.BaseURL, "/")
	if base == "" {
		base = "https://api.mercadopago.com"
	}
	return base + path
}

func (c *Client) do(req *http.Request) (*paymentResource, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("mercadopago request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read mercadopago response: %w", err)
	}

	var resource paymentResource
	if err := json.Unmarshal(data, &resource); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode mercadopago response: %w", err)
	}
	return &resource, resp.StatusCode, nil
}

func normalizeCPF(cpf string) string {
	return strings.NewReplacer(".", "", "-", "").Replace(cpf)
}

package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/config"
)

const (
	stkTransactionType = "CustomerPayBillOnline"
	b2cCommandID       = "BusinessPayment"
	b2bCommandID       = "BusinessPayBill"
	shortCodeIDType    = "4"
	gatewayTimestamp   = "20060102150405"
	responseCodeOK     = "0"
)

// Gateway is the subset of the mobile-money API the engine uses.
type Gateway interface {
	STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error)
	B2C(ctx context.Context, req B2CRequest) (*PayoutResponse, error)
	B2B(ctx context.Context, req B2BRequest) (*PayoutResponse, error)
}

type STKPushRequest struct {
	Amount      decimal.Decimal
	PhoneNumber string
	Description string
}

type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type B2CRequest struct {
	OriginatorConversationID string
	Amount                   decimal.Decimal
	PhoneNumber              string
	Remarks                  string
	Occasion                 string
}

type B2BRequest struct {
	OriginatorConversationID string
	Amount                   decimal.Decimal
	Paybill                  string
	AccountReference         string
	Remarks                  string
}

type PayoutResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

// MpesaClient talks to the Daraja-style mobile-money API.
type MpesaClient struct {
	cfg       config.GatewayConfig
	client    *http.Client
	publicKey *rsa.PublicKey
	now       func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

var _ Gateway = (*MpesaClient)(nil)

// NewMpesaClient builds a client from cfg. The payout certificate is loaded
// eagerly so a bad path fails at start-up rather than on the first payout.
func NewMpesaClient(cfg config.GatewayConfig) (*MpesaClient, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &MpesaClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
	if cfg.CertificatePath != "" {
		pemBytes, err := os.ReadFile(cfg.CertificatePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read gateway certificate: %w", err)
		}
		key, err := parseCertificateKey(pemBytes)
		if err != nil {
			return nil, err
		}
		c.publicKey = key
	}
	return c, nil
}

func parseCertificateKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("gateway certificate is not PEM encoded")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gateway certificate: %w", err)
	}
	key, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("gateway certificate does not carry an RSA key")
	}
	return key, nil
}

// Password is base64(shortcode + passkey + timestamp).
func (c *MpesaClient) Password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.PassKey + timestamp))
}

// SecurityCredential encrypts the initiator password with the gateway's
// public certificate.
func (c *MpesaClient) SecurityCredential() (string, error) {
	if c.publicKey == nil {
		return "", errors.New("gateway certificate not configured")
	}
	if c.cfg.InitiatorPassword == "" {
		return "", errors.New("initiator password not configured")
	}
	encrypted, err := rsa.EncryptPKCS1v15(rand.Reader, c.publicKey, []byte(c.cfg.InitiatorPassword))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt security credential: %w", err)
	}
	return base64.StdEncoding.EncodeToString(encrypted), nil
}

// AccessToken returns a cached OAuth token, fetching a new one shortly
// before the old one expires.
func (c *MpesaClient) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch access token: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("access token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		AccessToken string     `json:"access_token"`
		ExpiresIn   flexString `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.AccessToken == "" {
		return "", fmt.Errorf("invalid access token response: %s", string(body))
	}

	ttl := 3599
	if secs, err := out.ExpiresIn.Int(); err == nil && secs > 0 {
		ttl = secs
	}
	c.token = out.AccessToken
	// refresh a minute early
	c.tokenExpiry = c.now().Add(time.Duration(ttl)*time.Second - time.Minute)
	return c.token, nil
}

// STKPush asks the payer's phone to approve a collection.
func (c *MpesaClient) STKPush(ctx context.Context, r STKPushRequest) (*STKPushResponse, error) {
	timestamp := c.now().In(gatewayZone).Format(gatewayTimestamp)
	amount := r.Amount.Ceil().IntPart()

	payload := map[string]interface{}{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          c.Password(timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   stkTransactionType,
		"Amount":            amount,
		"PartyA":            r.PhoneNumber,
		"PartyB":            c.cfg.ShortCode,
		"PhoneNumber":       r.PhoneNumber,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  c.cfg.AccountReference,
		"TransactionDesc":   r.Description,
	}

	var out STKPushResponse
	if err := c.post(ctx, "/mpesa/stkpush/v1/processrequest", payload, &out); err != nil {
		return nil, err
	}
	if out.ResponseCode != responseCodeOK {
		return nil, &GatewayError{Code: out.ResponseCode, Message: out.ResponseDescription}
	}
	return &out, nil
}

// B2C pays out to a mobile-money number.
func (c *MpesaClient) B2C(ctx context.Context, r B2CRequest) (*PayoutResponse, error) {
	credential, err := c.SecurityCredential()
	if err != nil {
		return nil, err
	}
	payload := map[string]interface{}{
		"OriginatorConversationID": r.OriginatorConversationID,
		"InitiatorName":            c.cfg.InitiatorName,
		"SecurityCredential":       credential,
		"CommandID":                b2cCommandID,
		"Amount":                   r.Amount.Floor().IntPart(),
		"PartyA":                   c.cfg.PayoutShortCode,
		"PartyB":                   r.PhoneNumber,
		"Remarks":                  r.Remarks,
		"QueueTimeOutURL":          c.cfg.B2CTimeoutURL,
		"ResultURL":                c.cfg.B2CResultURL,
		"Occasion":                 r.Occasion,
	}
	return c.payout(ctx, "/mpesa/b2c/v3/paymentrequest", payload)
}

// B2B pays out to a bank paybill and account.
func (c *MpesaClient) B2B(ctx context.Context, r B2BRequest) (*PayoutResponse, error) {
	credential, err := c.SecurityCredential()
	if err != nil {
		return nil, err
	}
	payload := map[string]interface{}{
		"OriginatorConversationID": r.OriginatorConversationID,
		"Initiator":                c.cfg.InitiatorName,
		"SecurityCredential":       credential,
		"CommandID":                b2bCommandID,
		"SenderIdentifierType":     shortCodeIDType,
		"RecieverIdentifierType":   shortCodeIDType,
		"Amount":                   r.Amount.Floor().IntPart(),
		"PartyA":                   c.cfg.PayoutShortCode,
		"PartyB":                   r.Paybill,
		"AccountReference":         r.AccountReference,
		"Remarks":                  r.Remarks,
		"QueueTimeOutURL":          c.cfg.B2BTimeoutURL,
		"ResultURL":                c.cfg.B2BResultURL,
	}
	return c.payout(ctx, "/mpesa/b2b/v1/paymentrequest", payload)
}

func (c *MpesaClient) payout(ctx context.Context, path string, payload interface{}) (*PayoutResponse, error) {
	var out PayoutResponse
	if err := c.post(ctx, path, payload, &out); err != nil {
		return nil, err
	}
	if out.ResponseCode != responseCodeOK {
		return nil, &GatewayError{Code: out.ResponseCode, Message: out.ResponseDescription}
	}
	return &out, nil
}

// post sends an authorised JSON request. A 4xx answer that carries the
// gateway's error envelope becomes a *GatewayError; anything else that goes
// wrong is a plain (retryable) error.
func (c *MpesaClient) post(ctx context.Context, path string, payload, out interface{}) error {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var gwErr struct {
			ErrorCode    string `json:"errorCode"`
			ErrorMessage string `json:"errorMessage"`
		}
		if resp.StatusCode < 500 && json.Unmarshal(body, &gwErr) == nil && gwErr.ErrorCode != "" {
			return &GatewayError{Code: gwErr.ErrorCode, Message: gwErr.ErrorMessage}
		}
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

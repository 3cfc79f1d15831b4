package services

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/config"
	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/testutil"
)

// writeTestCertificate writes a self-signed certificate for key and returns
// its path.
func writeTestCertificate(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "sandbox.example.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "gateway.cer")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	return path
}

type gatewayStub struct {
	server     *httptest.Server
	key        *rsa.PrivateKey
	tokenCalls atomic.Int32

	mu       sync.Mutex
	lastBody map[string]interface{}
}

func (s *gatewayStub) body() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBody
}

func newGatewayStub(t *testing.T) (*gatewayStub, *MpesaClient) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	stub := &gatewayStub{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "consumer-key" || pass != "consumer-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		stub.tokenCalls.Add(1)
		w.Write([]byte(`{"access_token":"sandbox-token","expires_in":"3599"}`))
	})
	authorised := func(next func(w http.ResponseWriter, body map[string]interface{})) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer sandbox-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			var body map[string]interface{}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			stub.mu.Lock()
			stub.lastBody = body
			stub.mu.Unlock()
			next(w, body)
		}
	}
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", authorised(func(w http.ResponseWriter, body map[string]interface{}) {
		if body["PartyA"] == "254700000000" {
			w.Write([]byte(`{"ResponseCode":"1","ResponseDescription":"Rejected","CheckoutRequestID":"ws_CO_x"}`))
			return
		}
		w.Write([]byte(`{"MerchantRequestID":"29115-1","CheckoutRequestID":"ws_CO_02032026130000","ResponseCode":"0","ResponseDescription":"Success","CustomerMessage":"Success. Request accepted for processing"}`))
	}))
	mux.HandleFunc("/mpesa/b2c/v3/paymentrequest", authorised(func(w http.ResponseWriter, body map[string]interface{}) {
		w.Write([]byte(`{"ConversationID":"AG_20260302_1","OriginatorConversationID":"` + body["OriginatorConversationID"].(string) + `","ResponseCode":"0","ResponseDescription":"Accept the service request successfully."}`))
	}))
	mux.HandleFunc("/mpesa/b2b/v1/paymentrequest", authorised(func(w http.ResponseWriter, body map[string]interface{}) {
		if body["PartyB"] == "000000" {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`upstream unavailable`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"requestId":"1","errorCode":"400.002.02","errorMessage":"Bad Request - Invalid PartyB"}`))
	}))
	stub.server = httptest.NewServer(mux)
	t.Cleanup(stub.server.Close)

	client, err := NewMpesaClient(config.GatewayConfig{
		BaseURL:           stub.server.URL,
		ConsumerKey:       "consumer-key",
		ConsumerSecret:    "consumer-secret",
		ShortCode:         "174379",
		PassKey:           "passkey",
		CallbackURL:       "https://pay.example.com/api/v1/mpesa/stk/callback",
		AccountReference:  "Zidallie",
		PayoutShortCode:   "600000",
		InitiatorName:     "testapi",
		InitiatorPassword: "Safaricom999!",
		CertificatePath:   writeTestCertificate(t, key),
		Timeout:           5 * time.Second,
	})
	require.NoError(t, err)
	client.now = testutil.Clock
	return stub, client
}

func TestMpesaPassword(t *testing.T) {
	c := &MpesaClient{cfg: config.GatewayConfig{ShortCode: "174379", PassKey: "passkey"}}
	want := base64.StdEncoding.EncodeToString([]byte("174379passkey20260302130000"))
	assert.Equal(t, want, c.Password("20260302130000"))
}

func TestMpesaSTKPush(t *testing.T) {
	stub, client := newGatewayStub(t)

	resp, err := client.STKPush(context.Background(), STKPushRequest{
		Amount:      decimal.RequireFromString("99.50"),
		PhoneNumber: "254712345678",
		Description: "Transport daily payment",
	})
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_02032026130000", resp.CheckoutRequestID)

	body := stub.body()
	assert.Equal(t, float64(100), body["Amount"], "amounts are rounded up to whole shillings")
	assert.Equal(t, "20260302130000", body["Timestamp"], "timestamps are East Africa Time")
	assert.Equal(t, client.Password("20260302130000"), body["Password"])
	assert.Equal(t, "CustomerPayBillOnline", body["TransactionType"])
	assert.Equal(t, "174379", body["PartyB"])

	_, err = client.STKPush(context.Background(), STKPushRequest{Amount: decimal.NewFromInt(10), PhoneNumber: "254700000000"})
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "1", gwErr.Code)

	assert.Equal(t, int32(1), stub.tokenCalls.Load(), "the access token is cached")
}

func TestMpesaB2CSecurityCredential(t *testing.T) {
	stub, client := newGatewayStub(t)

	resp, err := client.B2C(context.Background(), B2CRequest{
		OriginatorConversationID: "3f1c2a4e-0000-4000-8000-000000000001",
		Amount:                   decimal.RequireFromString("250.75"),
		PhoneNumber:              "254722000111",
		Remarks:                  "School share",
	})
	require.NoError(t, err)
	assert.Equal(t, "AG_20260302_1", resp.ConversationID)

	body := stub.body()
	assert.Equal(t, float64(250), body["Amount"], "payouts never exceed the share")
	assert.Equal(t, "BusinessPayment", body["CommandID"])
	assert.Equal(t, "600000", body["PartyA"])

	encrypted, err := base64.StdEncoding.DecodeString(body["SecurityCredential"].(string))
	require.NoError(t, err)
	plain, err := rsa.DecryptPKCS1v15(rand.Reader, stub.key, encrypted)
	require.NoError(t, err)
	assert.Equal(t, "Safaricom999!", string(plain))
}

func TestMpesaB2BErrors(t *testing.T) {
	_, client := newGatewayStub(t)

	_, err := client.B2B(context.Background(), B2BRequest{
		OriginatorConversationID: "3f1c2a4e-0000-4000-8000-000000000002",
		Amount:                   decimal.NewFromInt(30),
		Paybill:                  "522522",
		AccountReference:         "1234567",
	})
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "400.002.02", gwErr.Code)
	assert.ErrorIs(t, err, ErrGatewayRejected)

	_, err = client.B2B(context.Background(), B2BRequest{
		OriginatorConversationID: "3f1c2a4e-0000-4000-8000-000000000003",
		Amount:                   decimal.NewFromInt(30),
		Paybill:                  "000000",
		AccountReference:         "1234567",
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrGatewayRejected, "server errors are retryable")
}

func TestMpesaPayoutWithoutCertificate(t *testing.T) {
	client, err := NewMpesaClient(config.GatewayConfig{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = client.B2C(context.Background(), B2CRequest{Amount: decimal.NewFromInt(1)})
	assert.ErrorContains(t, err, "certificate not configured")

	_, err = NewMpesaClient(config.GatewayConfig{CertificatePath: filepath.Join(t.TempDir(), "missing.cer")})
	assert.Error(t, err)
}

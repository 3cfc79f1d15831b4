package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCollectionCallback(t *testing.T) {
	res, err := ParseCollectionCallback(stkSuccess("ws_CO_191220191020363925", 350, "NLJ7RT61SV"))
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, "ws_CO_191220191020363925", res.CheckoutRequestID)
	assertDec(t, 350, res.Amount)
	assert.Equal(t, "254712345678", res.PhoneNumber)
	assert.Equal(t, "NLJ7RT61SV", res.TransactionID())
}

func TestParseCollectionCallbackPositionalItems(t *testing.T) {
	raw := []byte(`{"Body":{"stkCallback":{
		"CheckoutRequestID":"ws_CO_1",
		"ResultCode":"0",
		"ResultDesc":"ok",
		"CallbackMetadata":{"Item":[{"Value":"120.00"},{"Value":2.54712345678e+11}]}}}}`)

	res, err := ParseCollectionCallback(raw)
	require.NoError(t, err)
	assertDec(t, 120, res.Amount)
	assert.Equal(t, "254712345678", res.PhoneNumber)
	assert.Equal(t, "ws_CO_1", res.TransactionID(), "falls back to the checkout id without a receipt")
}

func TestParseCollectionCallbackFailure(t *testing.T) {
	res, err := ParseCollectionCallback(stkFailure("ws_CO_2", 1032))
	require.NoError(t, err)
	assert.False(t, res.Succeeded())
	assert.Equal(t, 1032, res.ResultCode)
	assert.True(t, res.Amount.IsZero())
}

func TestParseCollectionCallbackMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"no body", `{"Result":{}}`},
		{"no checkout id", `{"Body":{"stkCallback":{"ResultCode":0}}}`},
		{"bad result code", `{"Body":{"stkCallback":{"CheckoutRequestID":"x","ResultCode":"zero"}}}`},
		{"success without metadata", `{"Body":{"stkCallback":{"CheckoutRequestID":"x","ResultCode":0}}}`},
		{"non-positive amount", `{"Body":{"stkCallback":{"CheckoutRequestID":"x","ResultCode":0,"CallbackMetadata":{"Item":[{"Name":"Amount","Value":0}]}}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCollectionCallback([]byte(tt.raw))
			assert.ErrorIs(t, err, ErrMalformedCallback)
		})
	}
}

func TestParsePayoutResult(t *testing.T) {
	res, err := ParsePayoutResult(payoutResultBody("orig-1", 0, "NLJ41HAY6Q"))
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, "orig-1", res.OriginatorConversationID)
	assert.Equal(t, "NLJ41HAY6Q", res.TransactionID)
	assertDec(t, 250, res.Amount)
	require.NotNil(t, res.CompletedAt)
	assert.True(t, res.CompletedAt.Equal(time.Date(2026, 3, 2, 10, 5, 12, 0, time.UTC)))
}

func TestParsePayoutResultSingleParameter(t *testing.T) {
	raw := []byte(`{"Result":{
		"ResultType":"0",
		"ResultCode":"2001",
		"ResultDesc":"The initiator information is invalid.",
		"OriginatorConversationID":"orig-2",
		"ConversationID":"AG_2",
		"TransactionID":"",
		"ResultParameters":{"ResultParameter":{"Key":"TransCompletedTime","Value":20260302130512}}}}`)

	res, err := ParsePayoutResult(raw)
	require.NoError(t, err)
	assert.False(t, res.Succeeded())
	assert.Equal(t, 2001, res.ResultCode)
	assert.True(t, res.Amount.IsZero())
	require.NotNil(t, res.CompletedAt)
	assert.True(t, res.CompletedAt.Equal(time.Date(2026, 3, 2, 10, 5, 12, 0, time.UTC)))
}

func TestParsePayoutTimestamp(t *testing.T) {
	want := time.Date(2026, 3, 2, 10, 5, 12, 0, time.UTC)

	for _, s := range []string{"20260302130512", "02.03.2026 13:05:12", " 20260302130512 "} {
		got, err := ParsePayoutTimestamp(s)
		require.NoError(t, err, s)
		assert.True(t, got.Equal(want), "%s parsed as %s", s, got)
	}

	for _, s := range []string{"", "2026-03-02T13:05:12Z", "02/03/2026 13:05:12", "20261302130512"} {
		_, err := ParsePayoutTimestamp(s)
		assert.Error(t, err, s)
	}
}

package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrMalformedCallback = errors.New("malformed gateway callback")

// Payout result timestamps come in two encodings depending on the API.
const (
	payoutTimestampCompact = "20060102150405"      // B2B TransCompletedTime
	payoutTimestampDotted  = "02.01.2006 15:04:05" // B2C TransactionCompletedDateTime
)

// gatewayZone is East Africa Time; the gateway sends local timestamps.
var gatewayZone = time.FixedZone("EAT", 3*60*60)

// ParsePayoutTimestamp parses either payout timestamp encoding.
func ParsePayoutTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{payoutTimestampCompact, payoutTimestampDotted} {
		if len(s) != len(layout) {
			continue
		}
		if t, err := time.ParseInLocation(layout, s, gatewayZone); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised payout timestamp %q", s)
}

// flexString accepts a JSON string or a bare JSON number. The gateway is not
// consistent about which one it sends.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

func (f flexString) String() string { return strings.TrimSpace(string(f)) }

func (f flexString) Int() (int, error) {
	return strconv.Atoi(f.String())
}

func (f flexString) Decimal() (decimal.Decimal, error) {
	return decimal.NewFromString(f.String())
}

// Digits returns the value as a plain integer string, undoing any exponent
// notation a JSON encoder applied to long numbers such as phone numbers.
func (f flexString) Digits() string {
	s := f.String()
	if !strings.ContainsAny(s, "eE.") {
		return s
	}
	if d, err := decimal.NewFromString(s); err == nil {
		return d.Truncate(0).String()
	}
	return s
}

// Collection (STK push) callback envelope.

type stkCallbackEnvelope struct {
	Body *struct {
		StkCallback *stkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type stkCallback struct {
	MerchantRequestID string     `json:"MerchantRequestID"`
	CheckoutRequestID string     `json:"CheckoutRequestID"`
	ResultCode        flexString `json:"ResultCode"`
	ResultDesc        string     `json:"ResultDesc"`
	CallbackMetadata  *struct {
		Item []callbackItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

type callbackItem struct {
	Name  string     `json:"Name"`
	Value flexString `json:"Value"`
}

// CollectionResult is a parsed collection callback.
type CollectionResult struct {
	CheckoutRequestID string
	MerchantRequestID string
	ResultCode        int
	ResultDesc        string

	// Only set when ResultCode is 0.
	Amount        decimal.Decimal
	PhoneNumber   string
	ReceiptNumber string
}

// Succeeded reports whether the payer completed the collection.
func (r *CollectionResult) Succeeded() bool { return r.ResultCode == 0 }

// TransactionID is the gateway receipt, or the checkout id if the receipt
// was not sent.
func (r *CollectionResult) TransactionID() string {
	if r.ReceiptNumber != "" {
		return r.ReceiptNumber
	}
	return r.CheckoutRequestID
}

// ParseCollectionCallback decodes a collection callback body. Metadata items
// are looked up by name; when names are missing, amount is item 0 and phone is
// item 1.
func ParseCollectionCallback(raw []byte) (*CollectionResult, error) {
	var env stkCallbackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	if env.Body == nil || env.Body.StkCallback == nil {
		return nil, fmt.Errorf("%w: missing Body.stkCallback", ErrMalformedCallback)
	}
	cb := env.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: missing CheckoutRequestID", ErrMalformedCallback)
	}
	code, err := cb.ResultCode.Int()
	if err != nil {
		return nil, fmt.Errorf("%w: bad ResultCode %q", ErrMalformedCallback, cb.ResultCode)
	}

	result := &CollectionResult{
		CheckoutRequestID: cb.CheckoutRequestID,
		MerchantRequestID: cb.MerchantRequestID,
		ResultCode:        code,
		ResultDesc:        cb.ResultDesc,
	}
	if !result.Succeeded() {
		return result, nil
	}

	if cb.CallbackMetadata == nil || len(cb.CallbackMetadata.Item) == 0 {
		return nil, fmt.Errorf("%w: missing CallbackMetadata", ErrMalformedCallback)
	}
	items := cb.CallbackMetadata.Item

	amountItem, ok := findItem(items, "Amount")
	if !ok {
		amountItem = items[0]
	}
	amount, err := amountItem.Value.Decimal()
	if err != nil || !amount.IsPositive() {
		return nil, fmt.Errorf("%w: bad amount %q", ErrMalformedCallback, amountItem.Value)
	}
	result.Amount = amount

	if phoneItem, ok := findItem(items, "PhoneNumber"); ok {
		result.PhoneNumber = phoneItem.Value.Digits()
	} else if len(items) > 1 {
		result.PhoneNumber = items[1].Value.Digits()
	}
	if receipt, ok := findItem(items, "MpesaReceiptNumber"); ok {
		result.ReceiptNumber = receipt.Value.String()
	}
	return result, nil
}

func findItem(items []callbackItem, name string) (callbackItem, bool) {
	for _, it := range items {
		if strings.EqualFold(it.Name, name) {
			return it, true
		}
	}
	return callbackItem{}, false
}

// Payout (B2C / B2B) result callback envelope.

type payoutResultEnvelope struct {
	Result *struct {
		ResultType               flexString `json:"ResultType"`
		ResultCode               flexString `json:"ResultCode"`
		ResultDesc               string     `json:"ResultDesc"`
		OriginatorConversationID string     `json:"OriginatorConversationID"`
		ConversationID           string     `json:"ConversationID"`
		TransactionID            string     `json:"TransactionID"`
		ResultParameters         *struct {
			ResultParameter resultParameters `json:"ResultParameter"`
		} `json:"ResultParameters"`
	} `json:"Result"`
}

type resultParameter struct {
	Key   string     `json:"Key"`
	Value flexString `json:"Value"`
}

// resultParameters accepts both a list and a single object.
type resultParameters []resultParameter

func (p *resultParameters) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var one resultParameter
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*p = resultParameters{one}
		return nil
	}
	var many []resultParameter
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*p = many
	return nil
}

func (p resultParameters) lookup(keys ...string) (flexString, bool) {
	for _, key := range keys {
		for _, param := range p {
			if param.Key == key {
				return param.Value, true
			}
		}
	}
	return "", false
}

// PayoutResult is a parsed payout result callback.
type PayoutResult struct {
	ResultCode               int
	ResultDesc               string
	OriginatorConversationID string
	ConversationID           string
	TransactionID            string

	Amount      decimal.Decimal // zero when not reported
	CompletedAt *time.Time
}

func (r *PayoutResult) Succeeded() bool { return r.ResultCode == 0 }

// ParsePayoutResult decodes a payout result callback body.
func ParsePayoutResult(raw []byte) (*PayoutResult, error) {
	var env payoutResultEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	if env.Result == nil {
		return nil, fmt.Errorf("%w: missing Result", ErrMalformedCallback)
	}
	res := env.Result
	if res.OriginatorConversationID == "" {
		return nil, fmt.Errorf("%w: missing OriginatorConversationID", ErrMalformedCallback)
	}
	code, err := res.ResultCode.Int()
	if err != nil {
		return nil, fmt.Errorf("%w: bad ResultCode %q", ErrMalformedCallback, res.ResultCode)
	}

	out := &PayoutResult{
		ResultCode:               code,
		ResultDesc:               res.ResultDesc,
		OriginatorConversationID: res.OriginatorConversationID,
		ConversationID:           res.ConversationID,
		TransactionID:            res.TransactionID,
	}
	if res.ResultParameters == nil {
		return out, nil
	}

	params := res.ResultParameters.ResultParameter
	if v, ok := params.lookup("TransactionAmount", "Amount"); ok {
		if amount, err := v.Decimal(); err == nil {
			out.Amount = amount
		}
	}
	if v, ok := params.lookup("TransactionCompletedDateTime", "TransCompletedTime"); ok {
		if ts, err := ParsePayoutTimestamp(v.Digits()); err == nil {
			out.CompletedAt = &ts
		}
	}
	return out, nil
}

// payoutReference pulls the originator conversation id out of any payout
// callback body, for logging callbacks that fail to parse fully.
func payoutReference(raw []byte) string {
	var env payoutResultEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Result == nil {
		return ""
	}
	return env.Result.OriginatorConversationID
}

package x402

import (
	"encoding/json"
	"net/http"
	"time"

	"robopay/pkg/model"
	"robopay/pkg/money"
)

const (
	HeaderPaymentRequired = "X-Payment-Required"
	HeaderAmount          = "X-Payment-Amount"
	HeaderCurrency        = "X-Payment-Currency"
	HeaderNetwork         = "X-Payment-Network"
	HeaderAddress         = "X-Payment-Address"
	HeaderSessionID       = "X-Session-ID"
	HeaderMemo            = "X-Payment-Memo"
	HeaderExpiresAt       = "X-Expires-At"

	ErrorText   = "Payment Required"
	MessageText = "Please complete the payment to access this service"
)

// PaymentRequired describes how a caller settles a pending session.
type PaymentRequired struct {
	SessionID string
	Amount    money.Amount
	Currency  string
	Network   string
	Recipient string
	RobotID   string
	Service   string
	ExpiresAt time.Time
	Memo      string
}

// Body is the JSON document of a 402 response. Field order is fixed by the
// struct so that encoding the same descriptor always yields the same bytes.
type Body struct {
	Error     string       `json:"error"`
	Message   string       `json:"message"`
	SessionID string       `json:"session_id"`
	Amount    money.Amount `json:"amount"`
	Currency  string       `json:"currency"`
	Network   string       `json:"network"`
	Recipient string       `json:"recipient"`
	Memo      string       `json:"memo"`
	ExpiresAt string       `json:"expires_at"`
	Service   string       `json:"service"`
	RobotID   string       `json:"robot_id"`
}

func FromSession(s *model.PaymentSession, network, service string) PaymentRequired {
	return PaymentRequired{
		SessionID: s.ID,
		Amount:    s.Amount,
		Currency:  s.Currency,
		Network:   network,
		Recipient: s.Recipient,
		RobotID:   s.RobotID,
		Service:   service,
		ExpiresAt: s.ExpiresAt,
		Memo:      s.ID,
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func (p PaymentRequired) Headers() http.Header {
	h := http.Header{}
	h.Set(HeaderPaymentRequired, "true")
	h.Set(HeaderAmount, p.Amount.String())
	h.Set(HeaderCurrency, p.Currency)
	h.Set(HeaderNetwork, p.Network)
	h.Set(HeaderAddress, p.Recipient)
	h.Set(HeaderSessionID, p.SessionID)
	h.Set(HeaderMemo, p.Memo)
	h.Set(HeaderExpiresAt, formatTime(p.ExpiresAt))
	return h
}

func (p PaymentRequired) Body() Body {
	return Body{
		Error:     ErrorText,
		Message:   MessageText,
		SessionID: p.SessionID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Network:   p.Network,
		Recipient: p.Recipient,
		Memo:      p.Memo,
		ExpiresAt: formatTime(p.ExpiresAt),
		Service:   p.Service,
		RobotID:   p.RobotID,
	}
}

// Write sends the 402 challenge with mirrored headers and JSON body.
func Write(w http.ResponseWriter, p PaymentRequired) error {
	for key, values := range p.Headers() {
		w.Header()[key] = values
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	return json.NewEncoder(w).Encode(p.Body())
}

// Decode rebuilds a descriptor from response headers only. Service and RobotID
// are carried in the body and are left empty. Unparsable amount or expiry
// headers decode to zero values. ok is false when the response is not a
// payment challenge.
func Decode(h http.Header) (p PaymentRequired, ok bool) {
	if h.Get(HeaderPaymentRequired) != "true" {
		return PaymentRequired{}, false
	}

	p = PaymentRequired{
		SessionID: h.Get(HeaderSessionID),
		Currency:  h.Get(HeaderCurrency),
		Network:   h.Get(HeaderNetwork),
		Recipient: h.Get(HeaderAddress),
		Memo:      h.Get(HeaderMemo),
	}
	if amount, err := money.Parse(h.Get(HeaderAmount)); err == nil {
		p.Amount = amount
	}
	if expires, err := time.Parse(time.RFC3339, h.Get(HeaderExpiresAt)); err == nil {
		p.ExpiresAt = expires
	}
	return p, true
}

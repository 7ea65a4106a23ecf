package app

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	orderdomain "github.com/jcmexdev/storefront/internal/order-service/domain"
	"github.com/jcmexdev/storefront/internal/payment-service/domain"
)

// CardPaySignatureHeader carries the hex HMAC-SHA256 of the raw body.
const CardPaySignatureHeader = "X-CardPay-Signature"

// CardPayPayload is the JSON body CardPay posts back. Amounts are in minor
// units (cents).
type CardPayPayload struct {
	EventID     string `json:"event_id"`
	OrderRef    string `json:"order_ref"`
	Status      string `json:"status"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency,omitempty"`
}

type CardPay struct {
	secret      string
	checkoutURL string
}

func NewCardPay(secret, checkoutURL string) *CardPay {
	return &CardPay{secret: secret, checkoutURL: checkoutURL}
}

func (g *CardPay) Kind() domain.Kind { return domain.KindCardPay }

func (g *CardPay) Verify(env Envelope) error {
	return verifyHex(g.secret, env.Body, env.Signature)
}

func (g *CardPay) Normalize(env Envelope) (domain.Confirmation, error) {
	var p CardPayPayload
	if err := json.Unmarshal(env.Body, &p); err != nil {
		return domain.Confirmation{}, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if p.OrderRef == "" {
		return domain.Confirmation{}, fmt.Errorf("%w: order_ref is required", domain.ErrMalformedPayload)
	}

	var succeeded bool
	switch p.Status {
	case "succeeded":
		succeeded = true
	case "failed":
	default:
		return domain.Confirmation{}, fmt.Errorf("%w: unknown status %q", domain.ErrMalformedPayload, p.Status)
	}

	return domain.Confirmation{
		OrderID:   p.OrderRef,
		Succeeded: succeeded,
		Amount:    decimal.New(p.AmountMinor, -2),
		Gateway:   domain.KindCardPay,
		Reference: p.EventID,
	}, nil
}

func (g *CardPay) HandoffURL(order orderdomain.Order) (string, error) {
	u, err := url.Parse(g.checkoutURL)
	if err != nil {
		return "", fmt.Errorf("parse cardpay checkout url: %w", err)
	}
	minor := order.Total.Shift(2).Round(0).IntPart()
	q := u.Query()
	q.Set("order_ref", order.ID)
	q.Set("amount_minor", strconv.FormatInt(minor, 10))
	q.Set("signature", g.Sign([]byte(order.ID+":"+strconv.FormatInt(minor, 10))))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Sign returns the signature CardPay would send for body.
func (g *CardPay) Sign(body []byte) string {
	return hmacHex(g.secret, body)
}

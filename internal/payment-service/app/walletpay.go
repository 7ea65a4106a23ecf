package app

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	orderdomain "github.com/jcmexdev/storefront/internal/order-service/domain"
	"github.com/jcmexdev/storefront/internal/payment-service/domain"
)

const walletPaySignatureField = "signature"

// WalletPay posts a form body whose signature field covers every other
// field, sorted by key and joined as k=v&k=v.
type WalletPay struct {
	secret      string
	checkoutURL string
}

func NewWalletPay(secret, checkoutURL string) *WalletPay {
	return &WalletPay{secret: secret, checkoutURL: checkoutURL}
}

func (g *WalletPay) Kind() domain.Kind { return domain.KindWalletPay }

func (g *WalletPay) Verify(env Envelope) error {
	values, err := url.ParseQuery(string(env.Body))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	return verifyHex(g.secret, []byte(canonical(values)), values.Get(walletPaySignatureField))
}

func (g *WalletPay) Normalize(env Envelope) (domain.Confirmation, error) {
	values, err := url.ParseQuery(string(env.Body))
	if err != nil {
		return domain.Confirmation{}, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}

	orderID := values.Get("orderId")
	if orderID == "" {
		return domain.Confirmation{}, fmt.Errorf("%w: orderId is required", domain.ErrMalformedPayload)
	}
	resultCode := values.Get("resultCode")
	if resultCode == "" {
		return domain.Confirmation{}, fmt.Errorf("%w: resultCode is required", domain.ErrMalformedPayload)
	}
	amount, err := decimal.NewFromString(values.Get("amount"))
	if err != nil {
		return domain.Confirmation{}, fmt.Errorf("%w: amount: %v", domain.ErrMalformedPayload, err)
	}

	return domain.Confirmation{
		OrderID:   orderID,
		Succeeded: resultCode == "0",
		Amount:    amount,
		Gateway:   domain.KindWalletPay,
		Reference: values.Get("transId"),
	}, nil
}

func (g *WalletPay) HandoffURL(order orderdomain.Order) (string, error) {
	u, err := url.Parse(g.checkoutURL)
	if err != nil {
		return "", fmt.Errorf("parse walletpay checkout url: %w", err)
	}
	q := url.Values{}
	q.Set("orderId", order.ID)
	q.Set("amount", order.Total.StringFixed(2))
	q.Set("orderInfo", order.Code)
	u.RawQuery = g.Sign(q).Encode()
	return u.String(), nil
}

// Sign returns values with the signature field set.
func (g *WalletPay) Sign(values url.Values) url.Values {
	signed := url.Values{}
	for k, v := range values {
		if k != walletPaySignatureField {
			signed[k] = v
		}
	}
	signed.Set(walletPaySignatureField, hmacHex(g.secret, []byte(canonical(signed))))
	return signed
}

func canonical(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != walletPaySignatureField {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values.Get(k))
	}
	return strings.Join(pairs, "&")
}

package app

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	orderdomain "github.com/jcmexdev/storefront/internal/order-service/domain"
	"github.com/jcmexdev/storefront/internal/payment-service/domain"
)

// Envelope is a raw gateway callback as it arrived over the wire.
type Envelope struct {
	Kind domain.Kind
	Body []byte
	// Signature is the out-of-band signature (a header) for gateways that
	// send one. Gateways that sign inside the body ignore it.
	Signature string
}

// Gateway adapts one external payment provider. Verify must succeed before
// Normalize is trusted.
type Gateway interface {
	Kind() domain.Kind
	Verify(env Envelope) error
	Normalize(env Envelope) (domain.Confirmation, error)
	// HandoffURL is where the customer is redirected to pay for order.
	HandoffURL(order orderdomain.Order) (string, error)
}

// Registry looks gateways up by kind.
type Registry struct {
	gateways map[domain.Kind]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[domain.Kind]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Kind()] = g
	}
	return r
}

func (r *Registry) Get(kind domain.Kind) (Gateway, error) {
	g, ok := r.gateways[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownGateway, kind)
	}
	return g, nil
}

// ForMethod returns the gateway settling method. Methods paid outside a
// gateway report false.
func (r *Registry) ForMethod(method orderdomain.PaymentMethod) (Gateway, bool) {
	kind, ok := domain.KindFor(method)
	if !ok {
		return nil, false
	}
	g, ok := r.gateways[kind]
	return g, ok
}

func hmacHex(secret string, msg []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyHex(secret string, msg []byte, signature string) error {
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return domain.ErrBadSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return domain.ErrBadSignature
	}
	return nil
}

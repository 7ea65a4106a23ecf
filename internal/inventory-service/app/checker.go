package app

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/jcmexdev/storefront/internal/inventory-service/domain"
)

var tracer = otel.Tracer("github.com/jcmexdev/storefront/internal/inventory-service/app")

// Checker answers advisory availability questions. It never writes; the
// mutator re-validates under the unit of work.
type Checker struct {
	db *gorm.DB
}

func NewChecker(db *gorm.DB) *Checker {
	return &Checker{db: db}
}

// Check evaluates whether quantity units of the variant can be sold now.
func (c *Checker) Check(ctx context.Context, variantID string, quantity int) (domain.Availability, error) {
	ctx, span := tracer.Start(ctx, "inventory.Check")
	defer span.End()
	span.SetAttributes(attribute.String("variant_id", variantID), attribute.Int("quantity", quantity))

	if quantity <= 0 {
		return domain.Availability{}, domain.ErrInvalidQuantity
	}

	v, p, err := LoadVariant(ctx, c.db, variantID)
	if err != nil {
		return domain.Availability{}, err
	}
	return domain.Evaluate(p, v, quantity), nil
}

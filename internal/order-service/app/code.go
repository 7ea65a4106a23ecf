package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jcmexdev/storefront/internal/order-service/domain"
)

const defaultCodeAttempts = 5

// CodeGenerator allocates human-readable order codes like ORD-20261019-3F9A1C7B.
type CodeGenerator struct {
	attempts int
	suffix   func() string
}

func NewCodeGenerator() *CodeGenerator {
	return &CodeGenerator{attempts: defaultCodeAttempts, suffix: randomSuffix}
}

// Next returns a code not yet used by any order, giving up with
// ErrCodeExhausted after a bounded number of collisions.
func (g *CodeGenerator) Next(ctx context.Context, tx *gorm.DB, now time.Time) (string, error) {
	for i := 0; i < g.attempts; i++ {
		code := fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), g.suffix())

		var n int64
		if err := tx.WithContext(ctx).Model(&domain.Order{}).Where("code = ?", code).Count(&n).Error; err != nil {
			return "", fmt.Errorf("check order code: %w", err)
		}
		if n == 0 {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", domain.ErrCodeExhausted, g.attempts)
}

func randomSuffix() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

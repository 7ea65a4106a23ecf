package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	inventoryapp "github.com/jcmexdev/storefront/internal/inventory-service/app"
	inventorydomain "github.com/jcmexdev/storefront/internal/inventory-service/domain"
	"github.com/jcmexdev/storefront/internal/order-service/domain"
	"github.com/jcmexdev/storefront/internal/pkg/database"
)

var tracer = otel.Tracer("github.com/jcmexdev/storefront/internal/order-service/app")

// Service owns the order lifecycle: checkout, status transitions, admin
// edits and deletion. Each operation is one unit of work on the store.
type Service struct {
	tx        *database.Transactor
	checker   *inventoryapp.Checker
	machine   *StateMachine
	guard     *Guard
	codes     *CodeGenerator
	publisher domain.Publisher // nil-safe: events are dropped if nil
	now       func() time.Time
}

// NewService wires the order service. publisher may be nil.
func NewService(tx *database.Transactor, publisher domain.Publisher) *Service {
	guard := NewGuard(inventoryapp.NewMutator())
	return &Service{
		tx:        tx,
		checker:   inventoryapp.NewChecker(tx.DB()),
		machine:   NewStateMachine(guard),
		guard:     guard,
		codes:     NewCodeGenerator(),
		publisher: publisher,
		now:       time.Now,
	}
}

// CheckoutLine asks for quantity units of a variant. ProductID alone is
// accepted when the product has exactly one variant.
type CheckoutLine struct {
	VariantID string
	ProductID string
	Quantity  int
}

type CheckoutRequest struct {
	Lines          []CheckoutLine
	PaymentMethod  domain.PaymentMethod
	Customer       domain.Contact
	ShippingMethod string
	Discount       decimal.Decimal
	ShippingCost   decimal.Decimal
	Tax            decimal.Decimal
	Notes          string
}

type CheckoutResult struct {
	Order            domain.Order
	StockDecremented bool
	// Backorders lists lines accepted with a shortfall.
	Backorders []inventorydomain.Availability
}

// StockShortageError lists every checkout line the ledger cannot cover,
// with the stock seen when it was evaluated.
type StockShortageError struct {
	Items []inventorydomain.Availability
}

func (e *StockShortageError) Error() string {
	return fmt.Sprintf("insufficient stock for %d item(s)", len(e.Items))
}

func (e *StockShortageError) Is(target error) bool {
	return target == inventorydomain.ErrInsufficientStock
}

// Checkout creates a PENDING order with snapshotted lines. Orders paid at
// checkout take their stock in the same unit of work; online payments defer
// it to the gateway confirmation.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	ctx, span := tracer.Start(ctx, "orders.Checkout")
	defer span.End()
	span.SetAttributes(attribute.String("payment_method", string(req.PaymentMethod)), attribute.Int("lines", len(req.Lines)))

	req, err := normalizeCheckout(req)
	if err != nil {
		return CheckoutResult{}, err
	}

	backorders, err := s.precheck(ctx, req.Lines)
	if err != nil {
		return CheckoutResult{}, err
	}

	var out CheckoutResult
	err = s.tx.Run(ctx, func(tx *gorm.DB) error {
		out = CheckoutResult{Backorders: backorders}

		items := make([]domain.OrderItem, 0, len(req.Lines))
		for _, line := range req.Lines {
			item, err := snapshotLine(ctx, tx, line)
			if err != nil {
				return err
			}
			items = append(items, item)
		}

		now := s.now()
		code, err := s.codes.Next(ctx, tx, now)
		if err != nil {
			return err
		}

		subtotal := domain.Subtotal(items)
		order := domain.Order{
			ID:             uuid.NewString(),
			Code:           code,
			Status:         domain.StatusPending,
			PaymentMethod:  req.PaymentMethod,
			Subtotal:       subtotal,
			Discount:       req.Discount,
			ShippingCost:   req.ShippingCost,
			Tax:            req.Tax,
			Total:          domain.ComputeTotal(subtotal, req.Discount, req.ShippingCost, req.Tax),
			ShippingMethod: req.ShippingMethod,
			Notes:          req.Notes,
			Customer:       req.Customer,
			Items:          items,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if order.Total.IsNegative() {
			return fmt.Errorf("%w: total %s", domain.ErrInvalidAmount, order.Total)
		}

		if err := tx.WithContext(ctx).Create(&order).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if err := writeStatusLog(ctx, tx, order.ID, "", domain.StatusPending, ActorCheckout, "order placed"); err != nil {
			return err
		}

		if order.PaymentMethod.SettlesAtCheckout() {
			decremented, err := s.guard.Decrement(ctx, tx, &order)
			if err != nil {
				return err
			}
			out.StockDecremented = decremented
		}
		out.Order = order
		return nil
	})
	if err != nil {
		var stockErr *inventorydomain.InsufficientStockError
		if errors.As(err, &stockErr) {
			return CheckoutResult{}, &StockShortageError{Items: []inventorydomain.Availability{{
				VariantID:    stockErr.VariantID,
				Requested:    stockErr.Requested,
				CurrentStock: stockErr.Available,
				Status:       inventorydomain.Unavailable,
			}}}
		}
		return CheckoutResult{}, err
	}

	slog.InfoContext(ctx, "order placed",
		"order_id", out.Order.ID,
		"code", out.Order.Code,
		"payment_method", out.Order.PaymentMethod,
		"total", out.Order.Total.String(),
		"stock_decremented", out.StockDecremented,
	)
	s.publish(ctx, domain.Event{Type: domain.EventOrderCreated, To: domain.StatusPending}, out.Order)
	return out, nil
}

// precheck runs the advisory availability check for every line so the
// caller can report each short item with its live count.
func (s *Service) precheck(ctx context.Context, lines []CheckoutLine) ([]inventorydomain.Availability, error) {
	var short, backorders []inventorydomain.Availability
	for _, line := range lines {
		variantID, err := resolveVariantID(ctx, s.tx.DB(), line)
		if err != nil {
			return nil, err
		}
		a, err := s.checker.Check(ctx, variantID, line.Quantity)
		if err != nil {
			return nil, err
		}
		switch a.Status {
		case inventorydomain.Unavailable:
			short = append(short, a)
		case inventorydomain.AvailableWithBackorder:
			backorders = append(backorders, a)
		}
	}
	if len(short) > 0 {
		return nil, &StockShortageError{Items: short}
	}
	return backorders, nil
}

// Get returns an order with its items and shipping record.
func (s *Service) Get(ctx context.Context, id string) (domain.Order, error) {
	o, err := loadOrder(ctx, s.tx.DB(), id, false)
	if err != nil {
		return domain.Order{}, err
	}
	return *o, nil
}

// ListFilter narrows List. Zero values mean no filter.
type ListFilter struct {
	Status domain.OrderStatus
	Limit  int
}

// List returns order headers, newest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Order, error) {
	q := s.tx.DB().WithContext(ctx).Order("created_at DESC")
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var orders []domain.Order
	if err := q.Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// Transition moves an order to req.To through the state machine.
func (s *Service) Transition(ctx context.Context, req TransitionRequest) (Result, error) {
	ctx, span := tracer.Start(ctx, "orders.Transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("order_id", req.OrderID),
		attribute.String("to", string(req.To)),
		attribute.String("actor", string(req.Actor)),
	)

	to, err := domain.ParseStatus(string(req.To))
	if err != nil {
		return Result{}, err
	}
	req.To = to

	var res Result
	err = s.tx.Run(ctx, func(tx *gorm.DB) error {
		order, err := loadOrder(ctx, tx, req.OrderID, true)
		if err != nil {
			return err
		}
		res, err = s.machine.Apply(ctx, tx, order, req)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	s.afterTransition(ctx, req, res)
	return res, nil
}

// EditRequest changes fulfillment and contact fields and, optionally, the
// status. Nil fields are left untouched.
type EditRequest struct {
	OrderID        string
	Status         *domain.OrderStatus
	ConfirmPayment bool
	TrackingNumber *string
	ShippingMethod *string
	Carrier        *string
	Notes          *string
	Customer       *domain.Contact
}

func (r EditRequest) touchesFields() bool {
	return r.TrackingNumber != nil || r.ShippingMethod != nil || r.Carrier != nil || r.Notes != nil || r.Customer != nil
}

// Edit applies an administrative change. A status change goes through the
// same adjacency table as every other actor.
func (s *Service) Edit(ctx context.Context, req EditRequest) (Result, error) {
	ctx, span := tracer.Start(ctx, "orders.Edit")
	defer span.End()
	span.SetAttributes(attribute.String("order_id", req.OrderID))

	if req.Status != nil {
		status, err := domain.ParseStatus(string(*req.Status))
		if err != nil {
			return Result{}, err
		}
		req.Status = &status
	}

	var res Result
	err := s.tx.Run(ctx, func(tx *gorm.DB) error {
		order, err := loadOrder(ctx, tx, req.OrderID, true)
		if err != nil {
			return err
		}
		res = Result{From: order.Status, Outcome: OutcomeAlreadyProcessed}

		if req.touchesFields() {
			if err := s.applyFields(ctx, tx, order, req); err != nil {
				return err
			}
			res.Outcome = OutcomeApplied
		}

		if req.Status != nil && *req.Status != order.Status {
			tr, err := s.machine.Apply(ctx, tx, order, TransitionRequest{
				OrderID:        order.ID,
				To:             *req.Status,
				Actor:          ActorAdmin,
				ConfirmPayment: req.ConfirmPayment,
				Note:           "admin edit",
			})
			if err != nil {
				return err
			}
			res.Outcome = OutcomeApplied
			res.StockDecremented = tr.StockDecremented
			res.StockReleased = tr.StockReleased
			res.MarkedPaid = tr.MarkedPaid
		}

		updated, err := loadOrder(ctx, tx, order.ID, false)
		if err != nil {
			return err
		}
		if updated.Status.IsFulfillmentEligible() && (req.TrackingNumber != nil || req.Carrier != nil || req.Customer != nil) {
			if req.TrackingNumber != nil || req.Carrier != nil {
				if err := upsertShipping(ctx, tx, updated, req.Carrier); err != nil {
					return err
				}
			}
			if req.Customer != nil {
				if err := syncShippingAddress(ctx, tx, updated); err != nil {
					return err
				}
			}
			if updated, err = loadOrder(ctx, tx, order.ID, false); err != nil {
				return err
			}
		}
		res.Order = *updated
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if req.Status != nil && res.From != res.Order.Status {
		s.afterTransition(ctx, TransitionRequest{OrderID: req.OrderID, To: *req.Status, Actor: ActorAdmin}, res)
	}
	return res, nil
}

func (s *Service) applyFields(ctx context.Context, tx *gorm.DB, order *domain.Order, req EditRequest) error {
	updates := map[string]any{"updated_at": s.now()}
	if req.TrackingNumber != nil {
		updates["tracking_number"] = *req.TrackingNumber
	}
	if req.ShippingMethod != nil {
		updates["shipping_method"] = *req.ShippingMethod
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}
	if req.Customer != nil {
		for col, v := range contactColumns("customer_", *req.Customer) {
			updates[col] = v
		}
	}
	if err := tx.WithContext(ctx).Model(&domain.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("edit order %s: %w", order.ID, err)
	}

	return nil
}

// upsertShipping creates the order's shipping record or syncs it with the
// order header. A nil carrier keeps the recorded one.
func upsertShipping(ctx context.Context, tx *gorm.DB, order *domain.Order, carrier *string) error {
	var existing domain.Shipping
	err := tx.WithContext(ctx).Where("order_id = ?", order.ID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		shipping := domain.Shipping{
			OrderID:        order.ID,
			TrackingNumber: order.TrackingNumber,
			Cost:           order.ShippingCost,
			Address:        order.Customer,
		}
		if carrier != nil {
			shipping.Carrier = *carrier
		}
		if err := tx.WithContext(ctx).Create(&shipping).Error; err != nil {
			return fmt.Errorf("create shipping for order %s: %w", order.ID, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("load shipping for order %s: %w", order.ID, err)
	}

	updates := map[string]any{"tracking_number": order.TrackingNumber}
	if carrier != nil {
		updates["carrier"] = *carrier
	}
	if err := tx.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
		return fmt.Errorf("update shipping for order %s: %w", order.ID, err)
	}
	return nil
}

// syncShippingAddress copies the order's customer snapshot onto its shipping
// record, if one exists.
func syncShippingAddress(ctx context.Context, tx *gorm.DB, order *domain.Order) error {
	err := tx.WithContext(ctx).Model(&domain.Shipping{}).
		Where("order_id = ?", order.ID).
		Updates(contactColumns("address_", order.Customer)).Error
	if err != nil {
		return fmt.Errorf("update shipping address for order %s: %w", order.ID, err)
	}
	return nil
}

// Delete removes an order in a terminal status together with its shipping,
// decrement and audit records.
func (s *Service) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "orders.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("order_id", id))

	err := s.tx.Run(ctx, func(tx *gorm.DB) error {
		order, err := loadOrder(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if !order.Status.IsTerminal() {
			return fmt.Errorf("%w: order %s is %s", domain.ErrNotDeletable, id, order.Status)
		}

		db := tx.WithContext(ctx)
		if err := db.Where("order_id = ?", id).Delete(&domain.Shipping{}).Error; err != nil {
			return fmt.Errorf("delete shipping: %w", err)
		}

		var decrementIDs []uint
		if err := db.Model(&domain.InventoryDecrement{}).Where("order_id = ?", id).Pluck("id", &decrementIDs).Error; err != nil {
			return fmt.Errorf("find decrements: %w", err)
		}
		if len(decrementIDs) > 0 {
			if err := db.Where("decrement_id IN ?", decrementIDs).Delete(&domain.InventoryDecrementLine{}).Error; err != nil {
				return fmt.Errorf("delete decrement lines: %w", err)
			}
			if err := db.Where("id IN ?", decrementIDs).Delete(&domain.InventoryDecrement{}).Error; err != nil {
				return fmt.Errorf("delete decrements: %w", err)
			}
		}

		if err := db.Where("order_id = ?", id).Delete(&domain.StatusLog{}).Error; err != nil {
			return fmt.Errorf("delete status logs: %w", err)
		}
		if err := db.Where("order_id = ?", id).Delete(&domain.OrderItem{}).Error; err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
		if err := db.Where("id = ?", id).Delete(&domain.Order{}).Error; err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "order deleted", "order_id", id)
	return nil
}

func (s *Service) afterTransition(ctx context.Context, req TransitionRequest, res Result) {
	if res.AlreadyProcessed() {
		slog.InfoContext(ctx, "transition already processed",
			"order_id", req.OrderID, "status", res.Order.Status, "requested", req.To, "actor", req.Actor)
		return
	}

	slog.InfoContext(ctx, "order status changed",
		"order_id", res.Order.ID,
		"from", res.From,
		"to", res.Order.Status,
		"actor", req.Actor,
		"stock_decremented", res.StockDecremented,
		"stock_released", res.StockReleased,
		"marked_paid", res.MarkedPaid,
	)
	s.publish(ctx, domain.Event{Type: domain.EventStatusChanged, From: res.From, To: res.Order.Status, Reason: req.Note}, res.Order)
	if res.Order.Status == domain.StatusReturned {
		s.publish(ctx, domain.Event{Type: domain.EventRefundEligible, From: res.From, To: res.Order.Status}, res.Order)
	}
}

// PublishRejection reports a payment confirmation that was refused without
// touching the order.
func (s *Service) PublishRejection(ctx context.Context, order domain.Order, reason string) {
	s.publish(ctx, domain.Event{Type: domain.EventPaymentRejected, Reason: reason}, order)
}

func (s *Service) publish(ctx context.Context, event domain.Event, order domain.Order) {
	if s.publisher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.OrderID = order.ID
	event.OrderCode = order.Code
	event.Total = order.Total
	event.IsPaid = order.IsPaid
	event.OccurredAt = s.now().UTC()

	if err := s.publisher.Publish(ctx, event); err != nil {
		slog.ErrorContext(ctx, "failed to publish order event", "order_id", order.ID, "type", event.Type, "error", err)
	}
}

// normalizeCheckout validates req and returns it with the payment method in
// its canonical form.
func normalizeCheckout(req CheckoutRequest) (CheckoutRequest, error) {
	if len(req.Lines) == 0 {
		return req, domain.ErrEmptyOrder
	}
	method, err := domain.ParsePaymentMethod(string(req.PaymentMethod))
	if err != nil {
		return req, err
	}
	req.PaymentMethod = method
	for i, line := range req.Lines {
		if line.Quantity <= 0 || (line.VariantID == "" && line.ProductID == "") {
			return req, fmt.Errorf("%w: line %d", domain.ErrInvalidLine, i+1)
		}
	}
	for name, v := range map[string]decimal.Decimal{"discount": req.Discount, "shipping cost": req.ShippingCost, "tax": req.Tax} {
		if v.IsNegative() {
			return req, fmt.Errorf("%w: %s %s", domain.ErrInvalidAmount, name, v)
		}
	}
	return req, nil
}

func resolveVariantID(ctx context.Context, q *gorm.DB, line CheckoutLine) (string, error) {
	if line.VariantID != "" {
		return line.VariantID, nil
	}
	p, err := inventoryapp.LoadProduct(ctx, q, line.ProductID)
	if err != nil {
		return "", err
	}
	if len(p.Variants) != 1 {
		return "", fmt.Errorf("%w: %s", domain.ErrVariantRequired, line.ProductID)
	}
	return p.Variants[0].ID, nil
}

func snapshotLine(ctx context.Context, tx *gorm.DB, line CheckoutLine) (domain.OrderItem, error) {
	variantID, err := resolveVariantID(ctx, tx, line)
	if err != nil {
		return domain.OrderItem{}, err
	}
	v, p, err := inventoryapp.LoadVariant(ctx, tx, variantID)
	if err != nil {
		return domain.OrderItem{}, err
	}
	return domain.OrderItem{
		ProductID:    p.ID,
		VariantID:    v.ID,
		ProductName:  p.Name,
		Price:        v.UnitPrice(p),
		SizeName:     v.Size,
		ColorName:    v.Color,
		MaterialName: v.Material,
		Quantity:     line.Quantity,
	}, nil
}

func loadOrder(ctx context.Context, q *gorm.DB, id string, lock bool) (*domain.Order, error) {
	query := q.WithContext(ctx).Preload("Items").Preload("Shipping")
	if lock {
		query = database.ForUpdate(query)
	}

	var o domain.Order
	if err := query.First(&o, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
		}
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	return &o, nil
}

func contactColumns(prefix string, c domain.Contact) map[string]any {
	return map[string]any{
		prefix + "name":         c.Name,
		prefix + "email":        c.Email,
		prefix + "phone":        c.Phone,
		prefix + "address_line": c.AddressLine,
		prefix + "city":         c.City,
		prefix + "postal_code":  c.PostalCode,
		prefix + "country":      c.Country,
	}
}

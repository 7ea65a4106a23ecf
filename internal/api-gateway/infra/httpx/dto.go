package httpx

import (
	"time"

	"github.com/shopspring/decimal"

	inventorydomain "github.com/jcmexdev/storefront/internal/inventory-service/domain"
	orderdomain "github.com/jcmexdev/storefront/internal/order-service/domain"
)

type CreateOrderRequest struct {
	Items          []CreateOrderItemDTO `json:"items"`
	PaymentMethod  string               `json:"paymentMethod"`
	Customer       ContactDTO           `json:"customer"`
	ShippingMethod string               `json:"shippingMethod"`
	Discount       decimal.Decimal      `json:"discount"`
	ShippingCost   decimal.Decimal      `json:"shippingCost"`
	Tax            decimal.Decimal      `json:"tax"`
	Notes          string               `json:"notes"`
}

type CreateOrderItemDTO struct {
	VariantID string `json:"variantId,omitempty"`
	ProductID string `json:"productId,omitempty"`
	Quantity  int    `json:"quantity"`
}

type ContactDTO struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	AddressLine string `json:"addressLine,omitempty"`
	City        string `json:"city,omitempty"`
	PostalCode  string `json:"postalCode,omitempty"`
	Country     string `json:"country,omitempty"`
}

type EditOrderRequest struct {
	Status         *string     `json:"status"`
	ConfirmPayment bool        `json:"confirmPayment"`
	TrackingNumber *string     `json:"trackingNumber"`
	ShippingMethod *string     `json:"shippingMethod"`
	Carrier        *string     `json:"carrier"`
	Notes          *string     `json:"notes"`
	Customer       *ContactDTO `json:"customer"`
}

type RestockRequest struct {
	Quantity int `json:"quantity"`
}

type OrderResponse struct {
	ID                   string              `json:"id"`
	Code                 string              `json:"code"`
	Status               string              `json:"status"`
	IsPaid               bool                `json:"isPaid"`
	PaymentMethod        string              `json:"paymentMethod"`
	InventoryDecremented bool                `json:"inventoryDecremented"`
	RefundEligible       bool                `json:"refundEligible"`
	Subtotal             decimal.Decimal     `json:"subtotal"`
	Discount             decimal.Decimal     `json:"discount"`
	ShippingCost         decimal.Decimal     `json:"shippingCost"`
	Tax                  decimal.Decimal     `json:"tax"`
	Total                decimal.Decimal     `json:"total"`
	TrackingNumber       string              `json:"trackingNumber,omitempty"`
	ShippingMethod       string              `json:"shippingMethod,omitempty"`
	Notes                string              `json:"notes,omitempty"`
	Customer             ContactDTO          `json:"customer"`
	Items                []OrderItemResponse `json:"items"`
	Shipping             *ShippingResponse   `json:"shipping,omitempty"`
	PaidAt               *time.Time          `json:"paidAt,omitempty"`
	CreatedAt            time.Time           `json:"createdAt"`
	UpdatedAt            time.Time           `json:"updatedAt"`
}

type OrderItemResponse struct {
	ProductID   string          `json:"productId"`
	VariantID   string          `json:"variantId"`
	ProductName string          `json:"productName"`
	Size        string          `json:"size,omitempty"`
	Color       string          `json:"color,omitempty"`
	Material    string          `json:"material,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

type ShippingResponse struct {
	Carrier        string          `json:"carrier,omitempty"`
	TrackingNumber string          `json:"trackingNumber,omitempty"`
	Cost           decimal.Decimal `json:"cost"`
}

type CheckoutResponse struct {
	Order       OrderResponse          `json:"order"`
	RedirectURL string                 `json:"redirectUrl,omitempty"`
	Backorders  []AvailabilityResponse `json:"backorders,omitempty"`
}

type TransitionResponse struct {
	Order   OrderResponse `json:"order"`
	From    string        `json:"from"`
	Outcome string        `json:"outcome"`
}

type PaymentConfirmationResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
	Outcome string `json:"outcome"`
}

type AvailabilityResponse struct {
	VariantID    string `json:"variantId"`
	Requested    int    `json:"requested"`
	CurrentStock int    `json:"currentStock"`
	Shortfall    int    `json:"shortfall,omitempty"`
	Status       string `json:"status"`
}

type VariantResponse struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
	Material  string `json:"material,omitempty"`
	Stock     int    `json:"stock"`
}

type StockLevelResponse struct {
	VariantID         string `json:"variantId"`
	ProductID         string `json:"productId"`
	ProductName       string `json:"productName"`
	Size              string `json:"size,omitempty"`
	Color             string `json:"color,omitempty"`
	Material          string `json:"material,omitempty"`
	Stock             int    `json:"stock"`
	LowStockThreshold int    `json:"lowStockThreshold"`
}

// ShortItem is one line checkout could not cover.
type ShortItem struct {
	VariantID string `json:"variantId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message,omitempty"`
	Items   []ShortItem `json:"items,omitempty"`
}

func mapOrderToResponse(o orderdomain.Order) OrderResponse {
	resp := OrderResponse{
		ID:                   o.ID,
		Code:                 o.Code,
		Status:               string(o.Status),
		IsPaid:               o.IsPaid,
		PaymentMethod:        string(o.PaymentMethod),
		InventoryDecremented: o.InventoryDecremented,
		RefundEligible:       o.RefundEligible,
		Subtotal:             o.Subtotal,
		Discount:             o.Discount,
		ShippingCost:         o.ShippingCost,
		Tax:                  o.Tax,
		Total:                o.Total,
		TrackingNumber:       o.TrackingNumber,
		ShippingMethod:       o.ShippingMethod,
		Notes:                o.Notes,
		Customer:             mapContact(o.Customer),
		Items:                make([]OrderItemResponse, 0, len(o.Items)),
		PaidAt:               o.PaidAt,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, OrderItemResponse{
			ProductID:   it.ProductID,
			VariantID:   it.VariantID,
			ProductName: it.ProductName,
			Size:        it.SizeName,
			Color:       it.ColorName,
			Material:    it.MaterialName,
			Price:       it.Price,
			Quantity:    it.Quantity,
			LineTotal:   it.LineTotal(),
		})
	}
	if o.Shipping != nil {
		resp.Shipping = &ShippingResponse{
			Carrier:        o.Shipping.Carrier,
			TrackingNumber: o.Shipping.TrackingNumber,
			Cost:           o.Shipping.Cost,
		}
	}
	return resp
}

func mapContact(c orderdomain.Contact) ContactDTO {
	return ContactDTO{
		Name:        c.Name,
		Email:       c.Email,
		Phone:       c.Phone,
		AddressLine: c.AddressLine,
		City:        c.City,
		PostalCode:  c.PostalCode,
		Country:     c.Country,
	}
}

func (c ContactDTO) toDomain() orderdomain.Contact {
	return orderdomain.Contact{
		Name:        c.Name,
		Email:       c.Email,
		Phone:       c.Phone,
		AddressLine: c.AddressLine,
		City:        c.City,
		PostalCode:  c.PostalCode,
		Country:     c.Country,
	}
}

func mapAvailability(a inventorydomain.Availability) AvailabilityResponse {
	return AvailabilityResponse{
		VariantID:    a.VariantID,
		Requested:    a.Requested,
		CurrentStock: a.CurrentStock,
		Shortfall:    a.Shortfall,
		Status:       a.Status.String(),
	}
}

func mapVariant(v inventorydomain.Variant) VariantResponse {
	return VariantResponse{
		ID:        v.ID,
		ProductID: v.ProductID,
		Size:      v.Size,
		Color:     v.Color,
		Material:  v.Material,
		Stock:     v.Stock,
	}
}

func mapStockLevel(l inventorydomain.StockLevel) StockLevelResponse {
	return StockLevelResponse{
		VariantID:         l.VariantID,
		ProductID:         l.ProductID,
		ProductName:       l.ProductName,
		Size:              l.Size,
		Color:             l.Color,
		Material:          l.Material,
		Stock:             l.Stock,
		LowStockThreshold: l.LowStockThreshold,
	}
}

package domain

// AvailabilityStatus is the answer to "can N units be sold now?".
type AvailabilityStatus int

const (
	Available AvailabilityStatus = iota
	AvailableWithBackorder
	Unavailable
)

func (s AvailabilityStatus) String() string {
	switch s {
	case Available:
		return "available"
	case AvailableWithBackorder:
		return "available_with_backorder"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Availability is the advisory result for one variant and quantity.
type Availability struct {
	VariantID    string
	Requested    int
	CurrentStock int
	// Shortfall is the quantity that would be backordered.
	Shortfall int
	Status    AvailabilityStatus
}

// Evaluate applies the availability policy to a loaded variant and its product.
func Evaluate(p Product, v Variant, requested int) Availability {
	a := Availability{VariantID: v.ID, Requested: requested, CurrentStock: v.Stock}
	switch {
	case !p.TrackStock:
		a.Status = Available
	case v.Stock >= requested:
		a.Status = Available
	case p.AllowBackorder:
		a.Status = AvailableWithBackorder
		a.Shortfall = requested - v.Stock
	default:
		a.Status = Unavailable
	}
	return a
}

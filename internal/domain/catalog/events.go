package catalog

// ProductCreatedEvent is the catalog module's concrete announcement of a new
// product. It deliberately satisfies the inventory module's ProductCreated
// capability interface without inventory ever referring to this type: the
// conceptual cycle between the two modules is resolved by making catalog the
// only side with a physical dependency on inventory.
type ProductCreatedEvent struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func (ProductCreatedEvent) EventName() string { return "catalog.product_created" }

// CreatedProductID and InitialQuantity implement inventory.ProductCreated.
func (e ProductCreatedEvent) CreatedProductID() int64 { return e.ProductID }
func (e ProductCreatedEvent) InitialQuantity() int    { return e.Quantity }

func NewProductCreatedEvent(p *Product) ProductCreatedEvent {
	return ProductCreatedEvent{
		ProductID: p.ID,
		Quantity:  p.CurrentQuantity,
	}
}

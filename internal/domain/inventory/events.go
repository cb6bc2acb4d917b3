package inventory

import "github.com/Zhima-Mochi/modushop/internal/domain/event"

// ProductCreated is the capability interface the inventory module consumes
// to learn about new products. Inventory defines only the fields it needs
// and never references the producing module's concrete event type; any
// module may publish its own type satisfying this interface and reach the
// inventory listener. This inverts what would otherwise be a cyclic
// dependency between catalog and inventory.
type ProductCreated interface {
	event.Event
	CreatedProductID() int64
	InitialQuantity() int
}

// QuantityChangedEvent is emitted whenever a product's stock quantity
// changes. It is a module-external type: other modules may subscribe to it
// directly. NewQuantity is the absolute quantity after the change, so
// consumers stay idempotent under re-delivery.
type QuantityChangedEvent struct {
	ProductID   int64 `json:"product_id"`
	NewQuantity int   `json:"new_quantity"`
}

func (QuantityChangedEvent) EventName() string { return "inventory.quantity_changed" }

func NewQuantityChangedEvent(productID int64, newQuantity int) QuantityChangedEvent {
	return QuantityChangedEvent{
		ProductID:   productID,
		NewQuantity: newQuantity,
	}
}

package inventory

import (
	"github.com/Zhima-Mochi/modushop/internal/infrastructure/eventbus"
)

// ListenerInitialStock identifies the listener that provisions stock when a
// product appears anywhere in the system. The id is persisted inside
// envelopes, so changing it would orphan pending deliveries.
const ListenerInitialStock = "inventory.initial-stock"

type Worker struct {
	svc *Service
}

func NewWorker(svc *Service) *Worker {
	return &Worker{svc: svc}
}

// Register subscribes the inventory listeners. The subscription is on the
// ProductCreated capability interface, so any module whose creation events
// satisfy it feeds initial stock without inventory importing that module.
func (w *Worker) Register(bus *eventbus.Bus) error {
	return eventbus.Subscribe(bus, ListenerInitialStock, w.svc.OnProductCreated)
}

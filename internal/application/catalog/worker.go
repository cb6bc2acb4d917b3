package catalog

import (
	"github.com/Zhima-Mochi/modushop/internal/infrastructure/eventbus"
)

// ListenerQuantitySync identifies the catalog's stock-mirroring listener.
// The id is persisted inside envelopes, so changing it would orphan pending
// deliveries.
const ListenerQuantitySync = "catalog.quantity-sync"

type Worker struct {
	svc *Service
}

func NewWorker(svc *Service) *Worker {
	return &Worker{svc: svc}
}

// Register subscribes the catalog's listeners on the bus. Call once during
// startup, before the recovery scan.
func (w *Worker) Register(bus *eventbus.Bus) error {
	return eventbus.Subscribe(bus, ListenerQuantitySync, w.svc.OnQuantityChanged)
}

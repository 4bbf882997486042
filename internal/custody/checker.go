package custody

import (
	"context"
	"fmt"
	"time"
)

// Checker decides whether a requested custody event is legal for a device
// and performs the check-then-append as one serialized step.
type Checker struct {
	store EventStore
	now   func() time.Time
}

// NewChecker builds a Checker over the given event store.
func NewChecker(store EventStore) *Checker {
	return &Checker{store: store, now: time.Now}
}

// NewCheckerWithClock is like NewChecker with an injected clock for tests.
func NewCheckerWithClock(store EventStore, now func() time.Time) *Checker {
	return &Checker{store: store, now: now}
}

// CanDeliver reports whether a delivery event may be recorded for imei.
//
// An empty imei always passes: incidents and un-identified items bypass
// the state machine. Otherwise delivery is legal when the device has no
// prior event or its most recent event is not a delivery.
func (c *Checker) CanDeliver(ctx context.Context, imei string) (bool, error) {
	if imei == "" {
		return true, nil
	}
	kind, found, err := c.store.LastKind(ctx, imei)
	if err != nil {
		return false, fmt.Errorf("last event for %s: %w", imei, err)
	}
	return !found || kind != KindDelivery, nil
}

// Record appends e to the event log and returns the assigned id.
//
// For deliveries the legality check runs again inside the store's
// key-scoped lock, so two concurrent deliveries of the same IMEI cannot
// both pass. Receipts and incidents have no precondition. The event
// timestamp is assigned here, in UTC.
func (c *Checker) Record(ctx context.Context, e Event) (int64, error) {
	e.Timestamp = c.now().UTC()

	if e.Kind != KindDelivery || e.IMEI == "" {
		return c.store.Insert(ctx, e)
	}

	var id int64
	err := c.store.Locked(ctx, e.IMEI, func(ctx context.Context, s EventStore) error {
		kind, found, err := s.LastKind(ctx, e.IMEI)
		if err != nil {
			return fmt.Errorf("last event for %s: %w", e.IMEI, err)
		}
		if found && kind == KindDelivery {
			return &ViolationError{IMEI: e.IMEI}
		}
		id, err = s.Insert(ctx, e)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

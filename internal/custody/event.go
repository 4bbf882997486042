// Package custody enforces the device custody state invariant: a device
// identified by IMEI cannot be delivered twice without an intervening
// receipt. Events are appended to an immutable log; the legality check and
// the append run as one serialized step per device key.
package custody

import (
	"context"
	"fmt"
	"time"
)

// Kind is the custody event kind.
type Kind string

const (
	KindDelivery Kind = "entrega"
	KindReceipt  Kind = "recepcion"
	KindIncident Kind = "incidencia"
)

// ParseKind maps the accepted spellings (including accented and plural
// forms found in import files) onto the canonical kinds.
func ParseKind(s string) (Kind, bool) {
	switch normalizeKind(s) {
	case "entrega", "entregas", "delivery":
		return KindDelivery, true
	case "recepcion", "recepciones", "receipt":
		return KindReceipt, true
	case "incidencia", "incidencias", "incident":
		return KindIncident, true
	}
	return "", false
}

func normalizeKind(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case 'Á', 'á':
			r = 'a'
		case 'É', 'é':
			r = 'e'
		case 'Í', 'í':
			r = 'i'
		case 'Ó', 'ó':
			r = 'o'
		case 'Ú', 'ú':
			r = 'u'
		}
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		if r != ' ' {
			out = append(out, r)
		}
	}
	return string(out)
}

// Event is one immutable custody record. Events are only ever appended;
// the administrative edit path is the single exception and does not pass
// through the Checker.
type Event struct {
	ID            int64     `json:"id"`
	Situm         string    `json:"situm"`          // corporate email tied to the device, may be empty
	Actor         string    `json:"usuario"`        // person handing over or receiving
	IMEI          string    `json:"imei"`           // digits only, empty for device-less incidents
	Phone         string    `json:"telefono"`       // 9-digit national or empty
	Notes         string    `json:"notas"`          // free text
	Kind          Kind      `json:"tipo"`
	SignatureCode string    `json:"codigo_validacion,omitempty"` // OTP redeemed at delivery time
	SignerEmail   string    `json:"email_usuario,omitempty"`
	Timestamp     time.Time `json:"timestamp"` // UTC, assigned at insert
}

// ViolationError reports a delivery attempted on a device whose most
// recent event is already a delivery.
type ViolationError struct {
	IMEI string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("device %s is already delivered and has not been received back", e.IMEI)
}

// EventStore is the append-only log the Checker consults and writes.
//
// Locked must serialize fn against every other Locked call for the same
// device key; the store passed to fn observes and produces state in the
// same atomic scope (a transaction holding a key-scoped lock in the
// Postgres implementation).
type EventStore interface {
	Insert(ctx context.Context, e Event) (int64, error)
	LastKind(ctx context.Context, imei string) (Kind, bool, error)
	Locked(ctx context.Context, imei string, fn func(ctx context.Context, s EventStore) error) error
}

package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mitie-ops/custodia/internal/custody"
	"github.com/mitie-ops/custodia/internal/normalize"
	"github.com/mitie-ops/custodia/internal/store"
)

// Report is the outcome of one import batch. Errors preserve input row
// order; callers may cap how many they display but always receive the
// complete list.
type Report struct {
	BatchID  string   `json:"batch_id"`
	Inserted int      `json:"inserted"`
	Errors   []string `json:"errors"`
}

// EventAppender writes custody events. Bulk ingestion appends directly
// to the log: historical loads carry their own kinds and do not pass the
// delivery precondition check.
type EventAppender interface {
	Insert(ctx context.Context, e custody.Event) (int64, error)
}

// ComputerAppender writes computer records.
type ComputerAppender interface {
	Insert(ctx context.Context, c store.Computer) (int64, error)
}

// PhoneAppender writes phone inventory entries.
type PhoneAppender interface {
	Insert(ctx context.Context, p store.Phone) (int64, error)
}

// PersonAppender writes site directory entries.
type PersonAppender interface {
	Insert(ctx context.Context, p store.Person) (int64, error)
}

// Reconciler maps parsed rows onto canonical records and drives per-row
// insertion. Each row is its own unit of work: a failed insert is
// recorded and the batch moves on.
type Reconciler struct {
	events    EventAppender
	computers ComputerAppender
	phones    PhoneAppender
	persons   PersonAppender
	now       func() time.Time
}

// NewReconciler wires a Reconciler to its four targets.
func NewReconciler(events EventAppender, computers ComputerAppender, phones PhoneAppender, persons PersonAppender) *Reconciler {
	return &Reconciler{
		events:    events,
		computers: computers,
		phones:    phones,
		persons:   persons,
		now:       time.Now,
	}
}

// Devices ingests device custody rows. Canonical fields resolve through
// the alias lists the field has historically appeared under; phone and
// IMEI re-run the normalizer. A blank phone is "not provided"; a
// non-blank unparsable one skips the row.
func (r *Reconciler) Devices(ctx context.Context, rows []Row) Report {
	rep := newReport()

	for i, row := range rows {
		line := i + 2 // 1-based, after the header row

		imei := normalize.IMEI(row.Get("imei", "IMEI"))

		rawPhone := row.Get("telefono", "phone", "telefono_movil")
		phone, err := normalize.Phone(rawPhone)
		if err != nil {
			rep.fail(line, fmt.Sprintf("invalid phone %q (IMEI=%s)", rawPhone, imei))
			continue
		}

		kind := custody.KindDelivery
		if raw := row.Get("tipo", "type"); raw != "" {
			if parsed, ok := custody.ParseKind(raw); ok {
				kind = parsed
			}
		}

		e := custody.Event{
			Situm:     row.Get("situm", "SITUM"),
			Actor:     row.Get("usuario", "user", "nombre"),
			IMEI:      imei,
			Phone:     phone,
			Notes:     row.Get("notas_telefono", "notas", "notes", "modelo", "model"),
			Kind:      kind,
			Timestamp: r.now().UTC(),
		}
		if _, err := r.events.Insert(ctx, e); err != nil {
			rep.fail(line, fmt.Sprintf("insert failed for IMEI=%s: %v", imei, err))
			continue
		}
		rep.Inserted++
	}
	return rep
}

// Computers ingests workstation rows. Hostname is mandatory; unknown
// kinds coerce to delivery. actor is the operator running the import.
func (r *Reconciler) Computers(ctx context.Context, rows []Row, actor string) Report {
	rep := newReport()

	for i, row := range rows {
		line := i + 2

		hostname := row.Get("hostname", "HOSTNAME", "equipo")
		if hostname == "" {
			rep.fail(line, "missing hostname")
			continue
		}

		kind := custody.KindDelivery
		if parsed, ok := custody.ParseKind(row.Get("tipo", "TIPO")); ok {
			kind = parsed
		}

		project := row.Get("proyecto", "PROYECTO")
		if project == "" {
			project = "Mitie"
		}

		c := store.Computer{
			Project:   project,
			Hostname:  hostname,
			Serial:    row.Get("numero_serie", "serial", "sn", "SN"),
			Person:    row.Get("apellidos_nombre", "persona", "usuario_equipo"),
			Notes:     row.Get("notas", "observaciones"),
			Kind:      kind,
			Actor:     actor,
			Timestamp: r.now().UTC(),
		}
		if _, err := r.computers.Insert(ctx, c); err != nil {
			rep.fail(line, fmt.Sprintf("insert failed for host %s: %v", hostname, err))
			continue
		}
		rep.Inserted++
	}
	return rep
}

// Inventory ingests phone inventory rows. IMEI is mandatory.
func (r *Reconciler) Inventory(ctx context.Context, rows []Row) Report {
	rep := newReport()

	for i, row := range rows {
		line := i + 2

		imei := normalize.IMEI(row.Get("imei", "IMEI"))
		if imei == "" {
			rep.fail(line, "missing IMEI")
			continue
		}

		p := store.Phone{
			IMEI:        imei,
			Serial:      row.Get("numero_serie", "serial", "sn"),
			Model:       row.Get("modelo", "model"),
			LinkedPhone: row.Get("telefono_asociado", "telefono"),
			CreatedAt:   r.now().UTC(),
		}
		if _, err := r.phones.Insert(ctx, p); err != nil {
			rep.fail(line, fmt.Sprintf("insert failed for IMEI=%s: %v", imei, err))
			continue
		}
		rep.Inserted++
	}
	return rep
}

// Directory ingests GTD/SGPMR user rows. The full name is mandatory.
func (r *Reconciler) Directory(ctx context.Context, rows []Row) Report {
	rep := newReport()

	for i, row := range rows {
		line := i + 2

		fullName := row.Get("nombre_apellidos", "nombre", "persona")
		if fullName == "" {
			rep.fail(line, "missing nombre_apellidos")
			continue
		}

		p := store.Person{
			GTDUser:   row.Get("usuario_gtd"),
			SGPMRUser: row.Get("usuario_sgpmr"),
			FullName:  fullName,
			Email:     row.Get("correo_electronico", "email"),
			DNI:       row.Get("dni_nie", "dni"),
			CreatedAt: r.now().UTC(),
		}
		if _, err := r.persons.Insert(ctx, p); err != nil {
			rep.fail(line, fmt.Sprintf("insert failed for %s: %v", fullName, err))
			continue
		}
		rep.Inserted++
	}
	return rep
}

func newReport() Report {
	return Report{BatchID: uuid.NewString()}
}

func (rep *Report) fail(line int, msg string) {
	rep.Errors = append(rep.Errors, fmt.Sprintf("row %d: %s", line, msg))
}

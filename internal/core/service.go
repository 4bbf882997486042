package core

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mitie-ops/custodia/internal/custody"
	"github.com/mitie-ops/custodia/internal/importer"
	"github.com/mitie-ops/custodia/internal/mail"
	"github.com/mitie-ops/custodia/internal/normalize"
	"github.com/mitie-ops/custodia/internal/otp"
	"github.com/mitie-ops/custodia/internal/store"
)

// ErrSignatureInvalid is returned when a signature code cannot be
// redeemed: wrong email, wrong code, already used or older than the
// validity window. The caller cannot tell which, on purpose.
var ErrSignatureInvalid = errors.New("invalid or expired signature code")

// ErrDeletePassword is returned when the deletion confirmation password
// does not match the configured master password.
var ErrDeletePassword = errors.New("delete password mismatch")

// Options carries the tunable knobs the Service needs beyond its
// collaborators.
type Options struct {
	OTPWindow      time.Duration // zero means the default 30 minutes
	DeletePassword string        // empty disables bulk deletion
}

// Service provides the business logic for device custody operations:
// validated event writes, signature codes, bulk imports and the
// deletion gate. Read paths go through the store handles it exposes.
type Service struct {
	checker *custody.Checker
	ledger  *otp.Ledger
	mailer  mail.Mailer
	rec     *importer.Reconciler

	events    *store.Events
	computers *store.Computers
	inventory *store.Inventory
	directory *store.Directory

	deletePassword string
}

// NewService wires a Service over a connection pool.
func NewService(pool *pgxpool.Pool, mailer mail.Mailer, opts Options) *Service {
	events := store.NewEvents(pool)
	computers := store.NewComputers(pool)
	inventory := store.NewInventory(pool)
	directory := store.NewDirectory(pool)

	window := opts.OTPWindow
	if window <= 0 {
		window = otp.Window
	}

	return &Service{
		checker:        custody.NewChecker(events),
		ledger:         otp.NewLedgerWithClock(store.NewChallenges(pool), window, time.Now),
		mailer:         mailer,
		rec:            importer.NewReconciler(events, computers, inventory, directory),
		events:         events,
		computers:      computers,
		inventory:      inventory,
		directory:      directory,
		deletePassword: opts.DeletePassword,
	}
}

// Events exposes the custody event store for read paths.
func (s *Service) Events() *store.Events { return s.events }

// Computers exposes the workstation record store for read paths.
func (s *Service) Computers() *store.Computers { return s.computers }

// Inventory exposes the phone inventory store for read paths.
func (s *Service) Inventory() *store.Inventory { return s.inventory }

// Directory exposes the GTD/SGPMR directory store for read paths.
func (s *Service) Directory() *store.Directory { return s.directory }

// EventInput is the raw form input for a custody event. Fields arrive
// as typed, untrimmed strings; Validate normalizes them in place.
type EventInput struct {
	Situm         string
	Actor         string
	IMEI          string
	Phone         string
	Notes         string
	SignerEmail   string
	SignatureCode string
}

// validateEvent normalizes the scalar fields of in and reports the
// first failure. Phone and IMEI are rewritten to canonical form.
func validateEvent(in *EventInput) error {
	in.Situm = strings.TrimSpace(in.Situm)
	in.Actor = strings.TrimSpace(in.Actor)
	if in.Situm == "" {
		return &normalize.ValidationError{Field: "situm", Msg: "is required"}
	}
	if !normalize.IsCorporateEmail(in.Situm) {
		return &normalize.ValidationError{
			Field: "situm",
			Value: in.Situm,
			Msg:   "must be a corporate @mitie.es address",
		}
	}
	if in.Actor == "" {
		return &normalize.ValidationError{Field: "usuario", Msg: "is required"}
	}

	if in.IMEI != "" {
		imei := normalize.IMEI(in.IMEI)
		if !normalize.ValidIMEI(imei) {
			return &normalize.ValidationError{
				Field: "imei",
				Value: in.IMEI,
				Msg:   "imei must be exactly 15 digits",
			}
		}
		in.IMEI = imei
	}

	phone, err := normalize.Phone(in.Phone)
	if err != nil {
		return err
	}
	in.Phone = phone

	return nil
}

// RecordDelivery validates in, redeems the signature code when one was
// provided, and appends a delivery event through the custody checker.
// A device whose latest event is already a delivery is rejected with
// *custody.ViolationError and nothing is written.
func (s *Service) RecordDelivery(ctx context.Context, in EventInput) (int64, error) {
	if err := validateEvent(&in); err != nil {
		return 0, err
	}

	if in.SignatureCode != "" || in.SignerEmail != "" {
		ok, err := s.ledger.Redeem(ctx, in.SignerEmail, in.SignatureCode)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, ErrSignatureInvalid
		}
	}

	return s.checker.Record(ctx, custody.Event{
		Situm:         in.Situm,
		Actor:         in.Actor,
		IMEI:          in.IMEI,
		Phone:         in.Phone,
		Notes:         in.Notes,
		Kind:          custody.KindDelivery,
		SignatureCode: in.SignatureCode,
		SignerEmail:   in.SignerEmail,
	})
}

// RecordReceipt validates in and appends a receipt event. Receipts are
// never rejected by the custody checker.
func (s *Service) RecordReceipt(ctx context.Context, in EventInput) (int64, error) {
	if err := validateEvent(&in); err != nil {
		return 0, err
	}
	return s.checker.Record(ctx, custody.Event{
		Situm: in.Situm,
		Actor: in.Actor,
		IMEI:  in.IMEI,
		Phone: in.Phone,
		Notes: in.Notes,
		Kind:  custody.KindReceipt,
	})
}

// RecordIncident validates in and appends an incident event. Incidents
// may omit the IMEI entirely.
func (s *Service) RecordIncident(ctx context.Context, in EventInput) (int64, error) {
	if err := validateEvent(&in); err != nil {
		return 0, err
	}
	return s.checker.Record(ctx, custody.Event{
		Situm: in.Situm,
		Actor: in.Actor,
		IMEI:  in.IMEI,
		Phone: in.Phone,
		Notes: in.Notes,
		Kind:  custody.KindIncident,
	})
}

// SendCode issues a fresh signature code for email and mails it. The
// challenge is persisted before the mail leaves: a transport failure is
// reported to the caller but the code stays redeemable.
func (s *Service) SendCode(ctx context.Context, email string) error {
	if !normalize.IsCorporateEmail(email) {
		return &normalize.ValidationError{
			Field: "email",
			Value: email,
			Msg:   "must be a corporate @mitie.es address",
		}
	}

	code, err := s.ledger.Issue(ctx, email)
	if err != nil {
		return err
	}

	if err := s.mailer.SendCode(email, code); err != nil {
		return fmt.Errorf("send code to %s: %w", email, err)
	}
	return nil
}

// RedeemCode consumes the most recent live challenge for the pair.
// It exists for the standalone verification endpoint; the delivery path
// redeems inline.
func (s *Service) RedeemCode(ctx context.Context, email, code string) (bool, error) {
	return s.ledger.Redeem(ctx, email, code)
}

// UpdateEvent rewrites the editable fields of an existing event after
// re-running scalar validation. The custody invariant is not
// re-checked: an administrative edit can produce a double delivery in
// the log, matching how corrections have always been applied.
func (s *Service) UpdateEvent(ctx context.Context, e custody.Event) error {
	in := EventInput{Situm: e.Situm, Actor: e.Actor, IMEI: e.IMEI, Phone: e.Phone}
	if err := validateEvent(&in); err != nil {
		return err
	}
	e.Situm, e.Actor, e.IMEI, e.Phone = in.Situm, in.Actor, in.IMEI, in.Phone
	return s.events.Update(ctx, e)
}

// VerifyDeletePassword gates bulk deletion. The comparison is constant
// time; an unset master password rejects everything.
func (s *Service) VerifyDeletePassword(password string) bool {
	if s.deletePassword == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(s.deletePassword)) == 1
}

// DeleteEvents removes the selected events after checking the master
// password. Kinds narrows the deletion to the tab the selection came
// from so a stale id cannot remove a record of another kind.
func (s *Service) DeleteEvents(ctx context.Context, password string, ids []int64, kinds []custody.Kind) (int64, error) {
	if !s.VerifyDeletePassword(password) {
		return 0, ErrDeletePassword
	}
	return s.events.DeleteByIDs(ctx, ids, kinds)
}

// DeleteComputers removes the selected computer records after checking
// the master password.
func (s *Service) DeleteComputers(ctx context.Context, password string, ids []int64) (int64, error) {
	if !s.VerifyDeletePassword(password) {
		return 0, ErrDeletePassword
	}
	return s.computers.DeleteByIDs(ctx, ids)
}

// ImportDevices parses an uploaded CSV/XLSX and reconciles its rows
// into the custody event log. Row failures are collected in the report;
// only an unreadable or empty file aborts the batch.
func (s *Service) ImportDevices(ctx context.Context, data []byte, filename string) (importer.Report, error) {
	rows, err := s.parseUpload(data, filename)
	if err != nil {
		return importer.Report{}, err
	}
	return s.rec.Devices(ctx, rows), nil
}

// ImportComputers reconciles an uploaded file into the computer log,
// stamping actor on every inserted record.
func (s *Service) ImportComputers(ctx context.Context, data []byte, filename, actor string) (importer.Report, error) {
	rows, err := s.parseUpload(data, filename)
	if err != nil {
		return importer.Report{}, err
	}
	return s.rec.Computers(ctx, rows, actor), nil
}

// ImportInventory reconciles an uploaded file into the phone inventory.
func (s *Service) ImportInventory(ctx context.Context, data []byte, filename string) (importer.Report, error) {
	rows, err := s.parseUpload(data, filename)
	if err != nil {
		return importer.Report{}, err
	}
	return s.rec.Inventory(ctx, rows), nil
}

// ImportDirectory reconciles an uploaded file into the GTD/SGPMR
// directory.
func (s *Service) ImportDirectory(ctx context.Context, data []byte, filename string) (importer.Report, error) {
	rows, err := s.parseUpload(data, filename)
	if err != nil {
		return importer.Report{}, err
	}
	return s.rec.Directory(ctx, rows), nil
}

func (s *Service) parseUpload(data []byte, filename string) ([]importer.Row, error) {
	rows, err := importer.Parse(data, filename)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("file %q has no data rows", filename)
	}
	return rows, nil
}

// CreateComputer validates and inserts a single workstation record.
func (s *Service) CreateComputer(ctx context.Context, c store.Computer) (int64, error) {
	if c.Hostname == "" {
		return 0, &normalize.ValidationError{Field: "hostname", Msg: "is required"}
	}
	if c.Project == "" {
		c.Project = "Mitie"
	}
	if _, ok := custody.ParseKind(string(c.Kind)); !ok {
		c.Kind = custody.KindDelivery
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	return s.computers.Insert(ctx, c)
}

// CreatePhone validates and inserts a single inventory phone.
func (s *Service) CreatePhone(ctx context.Context, p store.Phone) (int64, error) {
	imei := normalize.IMEI(p.IMEI)
	if !normalize.ValidIMEI(imei) {
		return 0, &normalize.ValidationError{
			Field: "imei",
			Value: p.IMEI,
			Msg:   "imei must be exactly 15 digits",
		}
	}
	p.IMEI = imei
	return s.inventory.Insert(ctx, p)
}

// CreatePerson validates and inserts a single directory entry.
func (s *Service) CreatePerson(ctx context.Context, p store.Person) (int64, error) {
	if p.FullName == "" {
		return 0, &normalize.ValidationError{Field: "nombre_apellidos", Msg: "is required"}
	}
	return s.directory.Insert(ctx, p)
}

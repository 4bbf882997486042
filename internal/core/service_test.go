package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mitie-ops/custodia/internal/custody"
	"github.com/mitie-ops/custodia/internal/importer"
	"github.com/mitie-ops/custodia/internal/normalize"
	"github.com/mitie-ops/custodia/internal/otp"
	"github.com/mitie-ops/custodia/internal/store"
)

type memEvents struct {
	mu     sync.Mutex
	lockMu sync.Mutex
	events []custody.Event
	nextID int64
}

func (m *memEvents) Insert(_ context.Context, e custody.Event) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	m.events = append(m.events, e)
	return e.ID, nil
}

func (m *memEvents) LastKind(_ context.Context, imei string) (custody.Kind, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].IMEI == imei {
			return m.events[i].Kind, true, nil
		}
	}
	return "", false, nil
}

func (m *memEvents) Locked(ctx context.Context, _ string, fn func(context.Context, custody.EventStore) error) error {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	return fn(ctx, m)
}

type memChallenges struct {
	mu         sync.Mutex
	challenges []otp.Challenge
	nextID     int64
}

func (m *memChallenges) Insert(_ context.Context, c otp.Challenge) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c.ID = m.nextID
	m.challenges = append(m.challenges, c)
	return c.ID, nil
}

func (m *memChallenges) Consume(_ context.Context, email, code string, notBefore time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.challenges) - 1; i >= 0; i-- {
		c := &m.challenges[i]
		if c.Email == email && c.Code == code && !c.Consumed && !c.IssuedAt.Before(notBefore) {
			c.Consumed = true
			return true, nil
		}
	}
	return false, nil
}

type fakeMailer struct {
	sent []string // "to:code"
	fail bool
}

func (f *fakeMailer) SendCode(to, code string) error {
	if f.fail {
		return errors.New("smtp dial: connection refused")
	}
	f.sent = append(f.sent, to+":"+code)
	return nil
}

type computerSink struct{ rows []store.Computer }

func (s *computerSink) Insert(_ context.Context, c store.Computer) (int64, error) {
	s.rows = append(s.rows, c)
	return int64(len(s.rows)), nil
}

type phoneSink struct{ rows []store.Phone }

func (s *phoneSink) Insert(_ context.Context, p store.Phone) (int64, error) {
	s.rows = append(s.rows, p)
	return int64(len(s.rows)), nil
}

type personSink struct{ rows []store.Person }

func (s *personSink) Insert(_ context.Context, p store.Person) (int64, error) {
	s.rows = append(s.rows, p)
	return int64(len(s.rows)), nil
}

type testEnv struct {
	svc        *Service
	events     *memEvents
	challenges *memChallenges
	mailer     *fakeMailer
	computers  *computerSink
}

func newTestEnv() *testEnv {
	events := &memEvents{}
	challenges := &memChallenges{}
	mailer := &fakeMailer{}
	computers := &computerSink{}

	svc := &Service{
		checker:        custody.NewChecker(events),
		ledger:         otp.NewLedger(challenges),
		mailer:         mailer,
		rec:            importer.NewReconciler(events, computers, &phoneSink{}, &personSink{}),
		deletePassword: "masterpw",
	}
	return &testEnv{svc: svc, events: events, challenges: challenges, mailer: mailer, computers: computers}
}

func TestRecordDelivery_Validation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		in       EventInput
		wantCode string
	}{
		{
			name:     "missing situm",
			in:       EventInput{Actor: "garcia"},
			wantCode: "VAL004",
		},
		{
			name:     "foreign situm",
			in:       EventInput{Situm: "a@gmail.com", Actor: "garcia"},
			wantCode: "VAL003",
		},
		{
			name:     "missing actor",
			in:       EventInput{Situm: "a@mitie.es"},
			wantCode: "VAL004",
		},
		{
			name:     "short imei",
			in:       EventInput{Situm: "a@mitie.es", Actor: "garcia", IMEI: "1234"},
			wantCode: "VAL002",
		},
		{
			name:     "bad phone",
			in:       EventInput{Situm: "a@mitie.es", Actor: "garcia", Phone: "12345"},
			wantCode: "VAL001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			_, err := env.svc.RecordDelivery(ctx, tt.in)
			if err == nil {
				t.Fatal("RecordDelivery accepted invalid input")
			}
			var ve *normalize.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error %T is not a ValidationError", err)
			}
			if got := MapError(err).Code; got != tt.wantCode {
				t.Errorf("MapError(%v).Code = %s, want %s", err, got, tt.wantCode)
			}
			if len(env.events.events) != 0 {
				t.Error("event written despite validation failure")
			}
		})
	}
}

func TestRecordDelivery_NormalizesFields(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	_, err := env.svc.RecordDelivery(ctx, EventInput{
		Situm: "  flota@mitie.es ",
		Actor: "garcia",
		IMEI:  "12-345678 9012345",
		Phone: "+34 612 345 678",
	})
	if err != nil {
		t.Fatalf("RecordDelivery: %v", err)
	}

	e := env.events.events[0]
	if e.IMEI != "123456789012345" {
		t.Errorf("IMEI = %q, want digits only", e.IMEI)
	}
	if e.Phone != "612345678" {
		t.Errorf("Phone = %q, want national form", e.Phone)
	}
	if e.Situm != "flota@mitie.es" {
		t.Errorf("Situm = %q, want trimmed", e.Situm)
	}
	if e.Kind != custody.KindDelivery {
		t.Errorf("Kind = %q", e.Kind)
	}
}

func TestRecordDelivery_RejectsDoubleDelivery(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	in := EventInput{Situm: "flota@mitie.es", Actor: "garcia", IMEI: "123456789012345"}

	if _, err := env.svc.RecordDelivery(ctx, in); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	_, err := env.svc.RecordDelivery(ctx, in)
	var ve *custody.ViolationError
	if !errors.As(err, &ve) {
		t.Fatalf("second delivery error = %v, want ViolationError", err)
	}
	if ve.IMEI != in.IMEI {
		t.Errorf("violation names %q, want %q", ve.IMEI, in.IMEI)
	}
	if got := MapError(err).Code; got != "CUS001" {
		t.Errorf("MapError code = %s, want CUS001", got)
	}
	if len(env.events.events) != 1 {
		t.Fatalf("event log has %d entries, want 1", len(env.events.events))
	}

	if _, err := env.svc.RecordReceipt(ctx, in); err != nil {
		t.Fatalf("receipt: %v", err)
	}
	if _, err := env.svc.RecordDelivery(ctx, in); err != nil {
		t.Fatalf("delivery after receipt: %v", err)
	}
}

func TestRecordDelivery_Signature(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	if err := env.svc.SendCode(ctx, "firmante@mitie.es"); err != nil {
		t.Fatalf("SendCode: %v", err)
	}
	if len(env.mailer.sent) != 1 {
		t.Fatalf("mailer sent %d messages, want 1", len(env.mailer.sent))
	}
	code := strings.TrimPrefix(env.mailer.sent[0], "firmante@mitie.es:")

	in := EventInput{
		Situm:         "flota@mitie.es",
		Actor:         "garcia",
		IMEI:          "123456789012345",
		SignerEmail:   "firmante@mitie.es",
		SignatureCode: code,
	}
	if _, err := env.svc.RecordDelivery(ctx, in); err != nil {
		t.Fatalf("signed delivery: %v", err)
	}
	if got := env.events.events[0].SignatureCode; got != code {
		t.Errorf("stored signature %q, want %q", got, code)
	}

	// The code is spent: a second signed delivery must be rejected
	// before anything is written.
	in.IMEI = "999999999999999"
	_, err := env.svc.RecordDelivery(ctx, in)
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("reused code error = %v, want ErrSignatureInvalid", err)
	}
	if got := MapError(err).Code; got != "OTP001" {
		t.Errorf("MapError code = %s, want OTP001", got)
	}
	if len(env.events.events) != 1 {
		t.Errorf("event log has %d entries, want 1", len(env.events.events))
	}
}

func TestSendCode_MailFailureKeepsChallenge(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.mailer.fail = true

	err := env.svc.SendCode(ctx, "firmante@mitie.es")
	if err == nil {
		t.Fatal("SendCode reported success despite mail failure")
	}
	if got := MapError(err).Code; got != "OTP002" {
		t.Errorf("MapError code = %s, want OTP002", got)
	}

	// The challenge was persisted before the mail left.
	if len(env.challenges.challenges) != 1 {
		t.Fatalf("challenge store has %d entries, want 1", len(env.challenges.challenges))
	}
	ok, err := env.svc.RedeemCode(ctx, "firmante@mitie.es", env.challenges.challenges[0].Code)
	if err != nil || !ok {
		t.Errorf("RedeemCode = (%v, %v), want success", ok, err)
	}
}

func TestSendCode_RejectsForeignAddress(t *testing.T) {
	env := newTestEnv()
	err := env.svc.SendCode(context.Background(), "someone@gmail.com")
	if err == nil {
		t.Fatal("SendCode accepted a non-corporate address")
	}
	if len(env.challenges.challenges) != 0 {
		t.Error("challenge issued for a non-corporate address")
	}
}

func TestVerifyDeletePassword(t *testing.T) {
	env := newTestEnv()

	if !env.svc.VerifyDeletePassword("masterpw") {
		t.Error("correct password rejected")
	}
	if env.svc.VerifyDeletePassword("guess") {
		t.Error("wrong password accepted")
	}

	unset := &Service{}
	if unset.VerifyDeletePassword("") {
		t.Error("unset master password accepted empty input")
	}
}

func TestDeleteEvents_RequiresPassword(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.DeleteEvents(context.Background(), "guess", []int64{1}, nil)
	if !errors.Is(err, ErrDeletePassword) {
		t.Fatalf("error = %v, want ErrDeletePassword", err)
	}
	if got := MapError(err).Code; got != "AUTH001" {
		t.Errorf("MapError code = %s, want AUTH001", got)
	}
}

func TestImportDevices(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	csv := "situm,usuario,imei,telefono,tipo\n" +
		"flota@mitie.es,garcia,123456789012345,612345678,entrega\n" +
		"flota@mitie.es,lopez,,bad-phone,recepcion\n" +
		"flota@mitie.es,ruiz,,,incidencia\n"

	rep, err := env.svc.ImportDevices(ctx, []byte(csv), "devices.csv")
	if err != nil {
		t.Fatalf("ImportDevices: %v", err)
	}
	if rep.Inserted != 2 {
		t.Errorf("Inserted = %d, want 2", rep.Inserted)
	}
	if len(rep.Errors) != 1 || !strings.Contains(rep.Errors[0], "row 3") {
		t.Errorf("Errors = %v, want one error for row 3", rep.Errors)
	}
	if len(env.events.events) != 2 {
		t.Errorf("event log has %d entries, want 2", len(env.events.events))
	}
}

func TestImportDevices_BadFiles(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	_, err := env.svc.ImportDevices(ctx, []byte("x"), "devices.pdf")
	var ufe *importer.UnsupportedFormatError
	if !errors.As(err, &ufe) {
		t.Fatalf("error = %v, want UnsupportedFormatError", err)
	}
	if got := MapError(err).Code; got != "FILE001" {
		t.Errorf("MapError code = %s, want FILE001", got)
	}

	_, err = env.svc.ImportDevices(ctx, []byte("situm,usuario\n"), "empty.csv")
	if err == nil {
		t.Fatal("header-only file accepted")
	}
	if got := MapError(err).Code; got != "FILE003" {
		t.Errorf("MapError code = %s, want FILE003", got)
	}
}

func TestImportComputers_StampsActor(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	csv := "hostname,numero_serie,proyecto\nWS-0001,SN123,AENA\n"
	rep, err := env.svc.ImportComputers(ctx, []byte(csv), "computers.csv", "admin.garcia")
	if err != nil {
		t.Fatalf("ImportComputers: %v", err)
	}
	if rep.Inserted != 1 {
		t.Fatalf("Inserted = %d, want 1", rep.Inserted)
	}
	if got := env.computers.rows[0].Actor; got != "admin.garcia" {
		t.Errorf("Actor = %q, want admin.garcia", got)
	}
}

func TestCreatePhone_ValidatesIMEI(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.CreatePhone(context.Background(), store.Phone{IMEI: "12"})
	if err == nil {
		t.Fatal("CreatePhone accepted a short IMEI")
	}
	if got := MapError(err).Code; got != "VAL002" {
		t.Errorf("MapError code = %s, want VAL002", got)
	}
}

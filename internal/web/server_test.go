package web

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mitie-ops/custodia/internal/core"
	"github.com/mitie-ops/custodia/internal/mail"
)

// newTestServer builds a server over an unconnected service. Only
// requests that are rejected before any query reaches the pool may be
// exercised here; store-backed paths are covered by the store tests.
func newTestServer() *Server {
	svc := core.NewService(nil, mail.NewSMTPMailer(mail.SMTPConfig{}), core.Options{
		DeletePassword: "masterpw",
	})
	return NewServer(svc, Options{})
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&er); err != nil {
		t.Fatalf("decode error response: %v (body %q)", err, rec.Body.String())
	}
	return er
}

func TestHealthz(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRecordDelivery_BadInput(t *testing.T) {
	s := newTestServer()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing situm",
			body:       `{"usuario":"garcia"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VAL004",
		},
		{
			name:       "foreign situm",
			body:       `{"situm":"a@gmail.com","usuario":"garcia"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VAL003",
		},
		{
			name:       "bad phone",
			body:       `{"situm":"a@mitie.es","usuario":"garcia","telefono":"12345"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VAL001",
		},
		{
			name:       "short imei",
			body:       `{"situm":"a@mitie.es","usuario":"garcia","imei":"12"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VAL002",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/api/entregas", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if er := decodeError(t, rec); er.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", er.Code, tt.wantCode)
			}
		})
	}
}

func TestRecordDelivery_RejectsMalformedJSON(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s, http.MethodPost, "/api/entregas", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSendCode_RejectsForeignAddress(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s, http.MethodPost, "/api/firma/enviar", `{"email":"x@gmail.com"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if er := decodeError(t, rec); er.Code != "VAL003" {
		t.Errorf("code = %s, want VAL003", er.Code)
	}
}

func TestDeleteEvents_WrongPassword(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s, http.MethodPost, "/api/eventos/delete",
		`{"password":"guess","ids":[1,2],"tipos":["entrega"]}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if er := decodeError(t, rec); er.Code != "AUTH001" {
		t.Errorf("code = %s, want AUTH001", er.Code)
	}
}

func TestImportDevices_UnsupportedFormat(t *testing.T) {
	s := newTestServer()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "devices.pdf")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("%PDF-1.4"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/import/dispositivos", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
	}
	if er := decodeError(t, rec); er.Code != "FILE001" {
		t.Errorf("code = %s, want FILE001", er.Code)
	}
}

func TestImportDevices_MissingFile(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s, http.MethodPost, "/api/import/dispositivos", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

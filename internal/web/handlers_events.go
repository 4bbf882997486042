package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mitie-ops/custodia/internal/core"
	"github.com/mitie-ops/custodia/internal/custody"
	"github.com/mitie-ops/custodia/internal/export"
	"github.com/mitie-ops/custodia/internal/logging"
	"github.com/mitie-ops/custodia/internal/store"
)

// eventRequest is the JSON body for the three event endpoints.
type eventRequest struct {
	Situm         string `json:"situm"`
	Actor         string `json:"usuario"`
	IMEI          string `json:"imei"`
	Phone         string `json:"telefono"`
	Notes         string `json:"notas"`
	SignerEmail   string `json:"email_usuario"`
	SignatureCode string `json:"codigo_validacion"`
}

func (req eventRequest) input() core.EventInput {
	return core.EventInput{
		Situm:         req.Situm,
		Actor:         req.Actor,
		IMEI:          req.IMEI,
		Phone:         req.Phone,
		Notes:         req.Notes,
		SignerEmail:   req.SignerEmail,
		SignatureCode: req.SignatureCode,
	}
}

func (s *Server) handleRecordDelivery(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	id, err := s.service.RecordDelivery(r.Context(), req.input())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("delivery recorded", "id", id, "imei", req.IMEI)
	respondJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleRecordReceipt(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	id, err := s.service.RecordReceipt(r.Context(), req.input())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("receipt recorded", "id", id, "imei", req.IMEI)
	respondJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleRecordIncident(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	id, err := s.service.RecordIncident(r.Context(), req.input())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("incident recorded", "id", id, "imei", req.IMEI)
	respondJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// eventFilter builds a store filter from list query parameters:
// tipo, imei, usuario, desde, hasta.
func eventFilter(r *http.Request) store.EventFilter {
	q := r.URL.Query()

	var kinds []custody.Kind
	for _, raw := range strings.Split(q.Get("tipo"), ",") {
		if k, ok := custody.ParseKind(raw); ok {
			kinds = append(kinds, k)
		}
	}

	return store.EventFilter{
		Kinds:    kinds,
		IMEI:     q.Get("imei"),
		Actor:    q.Get("usuario"),
		DateFrom: q.Get("desde"),
		DateTo:   q.Get("hasta"),
	}
}

// pageParam reads ?page=, defaulting to 1. Out-of-range values are
// clamped downstream.
func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// handleHistory lists deliveries and receipts, newest first. A tipo
// parameter narrows to one kind.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	f := eventFilter(r)
	if len(f.Kinds) == 0 {
		f.Kinds = []custody.Kind{custody.KindDelivery, custody.KindReceipt}
	}

	res, err := s.service.Events().SearchPage(r.Context(), f, pageParam(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// handleIncidents lists incident events with the same search filters.
func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	f := eventFilter(r)
	f.Kinds = []custody.Kind{custody.KindIncident}

	res, err := s.service.Events().SearchPage(r.Context(), f, pageParam(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// handleHistoryExport streams the filtered events as an xlsx workbook.
// tipo selects the column layout; it defaults to deliveries.
func (s *Server) handleHistoryExport(w http.ResponseWriter, r *http.Request) {
	kind := custody.KindDelivery
	if k, ok := custody.ParseKind(r.URL.Query().Get("tipo")); ok {
		kind = k
	}

	f := eventFilter(r)
	f.Kinds = []custody.Kind{kind}
	if ids := idsParam(r); len(ids) > 0 {
		f = store.EventFilter{Kinds: f.Kinds, IDs: ids}
	}

	events, err := s.service.Events().Search(r.Context(), f)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var name string
	switch kind {
	case custody.KindReceipt:
		name = "recepciones.xlsx"
	case custody.KindIncident:
		name = "incidencias.xlsx"
	default:
		name = "entregas.xlsx"
	}

	book, err := buildEventWorkbook(kind, events)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(book.Bytes())
}

func buildEventWorkbook(kind custody.Kind, events []custody.Event) (*bytes.Buffer, error) {
	switch kind {
	case custody.KindReceipt:
		return export.Receipts(events)
	case custody.KindIncident:
		return export.Incidents(events)
	default:
		return export.Deliveries(events)
	}
}

// idsParam reads ?ids=1,2,3.
func idsParam(r *http.Request) []int64 {
	raw := strings.TrimSpace(r.URL.Query().Get("ids"))
	if raw == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		if id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	e, err := s.service.Events().Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

// handleUpdateEvent rewrites the editable fields of an event. The
// custody invariant is deliberately not re-checked here.
func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	e := custody.Event{
		ID:    id,
		Situm: req.Situm,
		Actor: req.Actor,
		IMEI:  req.IMEI,
		Phone: req.Phone,
		Notes: req.Notes,
	}
	if err := s.service.UpdateEvent(r.Context(), e); err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("event updated", "id", id)
	respondJSON(w, http.StatusOK, map[string]int64{"id": id})
}

// deleteEventsRequest is the JSON body for bulk event deletion.
type deleteEventsRequest struct {
	Password string   `json:"password"`
	IDs      []int64  `json:"ids"`
	Kinds    []string `json:"tipos"`
}

func (s *Server) handleDeleteEvents(w http.ResponseWriter, r *http.Request) {
	var req deleteEventsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	var kinds []custody.Kind
	for _, raw := range req.Kinds {
		if k, ok := custody.ParseKind(raw); ok {
			kinds = append(kinds, k)
		}
	}

	deleted, err := s.service.DeleteEvents(r.Context(), req.Password, req.IDs, kinds)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("events deleted", "count", deleted)
	respondJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

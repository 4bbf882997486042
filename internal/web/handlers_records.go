package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mitie-ops/custodia/internal/custody"
	"github.com/mitie-ops/custodia/internal/export"
	"github.com/mitie-ops/custodia/internal/logging"
	"github.com/mitie-ops/custodia/internal/store"
)

func (s *Server) handleCreateComputer(w http.ResponseWriter, r *http.Request) {
	var c store.Computer
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	id, err := s.service.CreateComputer(r.Context(), c)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("computer recorded", "id", id, "hostname", c.Hostname)
	respondJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// computerFilter reads the equipos search parameters: tipo, hostname,
// numero_serie, proyecto.
func computerFilter(r *http.Request) store.ComputerFilter {
	q := r.URL.Query()

	f := store.ComputerFilter{
		Hostname: q.Get("hostname"),
		Serial:   q.Get("numero_serie"),
		Project:  q.Get("proyecto"),
	}
	if k, ok := custody.ParseKind(q.Get("tipo")); ok {
		f.Kind = k
	}
	return f
}

func (s *Server) handleListComputers(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.Computers().SearchPage(r.Context(), computerFilter(r), pageParam(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleComputersExport(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.Computers().Search(r.Context(), computerFilter(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	book, err := export.Computers(records)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "equipos.xlsx"))
	w.Write(book.Bytes())
}

func (s *Server) handleUpdateComputer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var c store.Computer
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	c.ID = id

	if err := s.service.Computers().Update(r.Context(), c); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"id": id})
}

type deleteComputersRequest struct {
	Password string  `json:"password"`
	IDs      []int64 `json:"ids"`
}

func (s *Server) handleDeleteComputers(w http.ResponseWriter, r *http.Request) {
	var req deleteComputersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	deleted, err := s.service.DeleteComputers(r.Context(), req.Password, req.IDs)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("computers deleted", "count", deleted)
	respondJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (s *Server) handleCreatePhone(w http.ResponseWriter, r *http.Request) {
	var p store.Phone
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	id, err := s.service.CreatePhone(r.Context(), p)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleListInventory(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.Inventory().ListPage(r.Context(), pageParam(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleCreatePerson(w http.ResponseWriter, r *http.Request) {
	var p store.Person
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	id, err := s.service.CreatePerson(r.Context(), p)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleListDirectory(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.Directory().ListPage(r.Context(), pageParam(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

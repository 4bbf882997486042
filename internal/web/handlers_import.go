package web

import (
	"context"
	"io"
	"net/http"

	"github.com/mitie-ops/custodia/internal/importer"
	"github.com/mitie-ops/custodia/internal/logging"
)

// readUpload extracts the uploaded file from a multipart form, capped
// at the configured size.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return nil, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "unreadable upload", http.StatusBadRequest)
		return nil, "", false
	}
	return data, header.Filename, true
}

func (s *Server) runImport(w http.ResponseWriter, r *http.Request, what string,
	run func(ctx context.Context, data []byte, filename string) (importer.Report, error)) {

	data, filename, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	rep, err := run(r.Context(), data, filename)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.WithFields(r.Context(), "batch_id", rep.BatchID).Info("import finished",
		"target", what,
		"file", filename,
		"inserted", rep.Inserted,
		"errors", len(rep.Errors),
	)
	respondJSON(w, http.StatusOK, rep)
}

func (s *Server) handleImportDevices(w http.ResponseWriter, r *http.Request) {
	s.runImport(w, r, "dispositivos", s.service.ImportDevices)
}

func (s *Server) handleImportComputers(w http.ResponseWriter, r *http.Request) {
	// The actor field rides in the same multipart form as the file;
	// by the time the closure runs the form is parsed under the cap.
	s.runImport(w, r, "equipos", func(ctx context.Context, data []byte, filename string) (importer.Report, error) {
		return s.service.ImportComputers(ctx, data, filename, r.FormValue("usuario"))
	})
}

func (s *Server) handleImportInventory(w http.ResponseWriter, r *http.Request) {
	s.runImport(w, r, "inventario", s.service.ImportInventory)
}

func (s *Server) handleImportDirectory(w http.ResponseWriter, r *http.Request) {
	s.runImport(w, r, "directorio", s.service.ImportDirectory)
}

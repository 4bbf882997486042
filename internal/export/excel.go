// Package export builds the XLSX artifacts the history views download.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mitie-ops/custodia/internal/custody"
	"github.com/mitie-ops/custodia/internal/store"
)

// Workbook writes headers plus rows into the first sheet of a new
// workbook and returns the serialized file.
func Workbook(headers []string, rows [][]any) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return nil, fmt.Errorf("write header row: %w", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return f.WriteToBuffer()
}

// Deliveries builds the delivery history workbook.
func Deliveries(events []custody.Event) (*bytes.Buffer, error) {
	headers := []string{"Situm", "Usuario", "IMEI", "Teléfono", "Email", "Firma", "Fecha (UTC)"}
	rows := make([][]any, len(events))
	for i, e := range events {
		signature := e.SignatureCode
		if signature == "" {
			signature = "Sin firma"
		}
		rows[i] = []any{e.Situm, e.Actor, e.IMEI, e.Phone, e.SignerEmail, signature, stamp(e.Timestamp)}
	}
	return Workbook(headers, rows)
}

// Receipts builds the receipt history workbook.
func Receipts(events []custody.Event) (*bytes.Buffer, error) {
	headers := []string{"Situm", "Usuario", "IMEI", "Teléfono", "Notas", "Fecha (UTC)"}
	rows := make([][]any, len(events))
	for i, e := range events {
		rows[i] = []any{e.Situm, e.Actor, e.IMEI, e.Phone, e.Notes, stamp(e.Timestamp)}
	}
	return Workbook(headers, rows)
}

// Incidents builds the incident history workbook.
func Incidents(events []custody.Event) (*bytes.Buffer, error) {
	headers := []string{"IMEI", "Usuario", "Teléfono", "Notas", "Fecha (UTC)"}
	rows := make([][]any, len(events))
	for i, e := range events {
		rows[i] = []any{e.IMEI, e.Actor, e.Phone, e.Notes, stamp(e.Timestamp)}
	}
	return Workbook(headers, rows)
}

// Computers builds the computer history workbook.
func Computers(records []store.Computer) (*bytes.Buffer, error) {
	headers := []string{"Proyecto", "Hostname", "S/N", "Persona", "Notas", "Registrado por", "Fecha", "Tipo"}
	rows := make([][]any, len(records))
	for i, c := range records {
		rows[i] = []any{c.Project, c.Hostname, c.Serial, c.Person, c.Notes, c.Actor, stamp(c.Timestamp), string(c.Kind)}
	}
	return Workbook(headers, rows)
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

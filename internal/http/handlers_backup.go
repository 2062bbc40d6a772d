package http

import (
	"bytes"
	"net/http"

	applog "finanzas/internal/log"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.codec.ExportJSON(r.Context())
	if err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	NewResponse().
		Raw("application/json; charset=utf-8", data).
		Attachment("finanzas-backup-" + s.now().Format("2006-01-02") + ".json").
		Write(w)
}

// handleExportReport renders the workbook into memory first so a failure
// still yields a clean error response.
func (s *Server) handleExportReport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.codec.WriteReport(r.Context(), &buf); err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	NewResponse().
		Raw(xlsxContentType, buf.Bytes()).
		Attachment("finanzas-" + s.now().Format("2006-01-02") + ".xlsx").
		Write(w)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	payload, err := readBackup(w, r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	result, err := s.codec.Import(r.Context(), payload)
	if err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Backup restored",
		"restored", result.Restored)
	NewResponse().JSON(result).Write(w)
}

// handleClear wipes every collection and recreates the default cash account
// so the ledger stays usable.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.codec.ClearAll(r.Context()); err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	if _, _, err := s.svc.Engine().EnsureDefaultAccount(r.Context()); err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}

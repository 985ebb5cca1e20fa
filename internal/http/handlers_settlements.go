package http

import (
	"bytes"
	"net/http"
	"strings"

	"labcafe/internal/auth"
	"labcafe/internal/excel"
	"labcafe/internal/service"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	list, err := h.svc.ListSettlements(r.Context(), auth.ActorFromContext(r.Context()), limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list, "count": len(list)})
}

type createSettlementRequest struct {
	Month string `json:"month"`
	Notes string `json:"notes"`
}

func (h *Handler) CreateSettlement(w http.ResponseWriter, r *http.Request) {
	var req createSettlementRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.svc.CreateSettlement(r.Context(), auth.ActorFromContext(r.Context()), service.CreateSettlementInput{
		Month: req.Month,
		Notes: req.Notes,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.GetSettlement(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) PreviewSettlement(w http.ResponseWriter, r *http.Request) {
	preview, err := h.svc.PreviewSettlement(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (h *Handler) BillSettlement(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.BillSettlement(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type paymentRequest struct {
	UserID    string `json:"user_id"`
	Paid      bool   `json:"paid"`
	Method    string `json:"method"`
	Reference string `json:"reference"`
}

func (h *Handler) SetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	status, err := h.svc.SetPaymentStatus(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"), service.PaymentInput{
		UserID:    req.UserID,
		Paid:      req.Paid,
		Method:    req.Method,
		Reference: req.Reference,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) FinalizeSettlement(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.FinalizeSettlement(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) VoidSettlement(w http.ResponseWriter, r *http.Request) {
	settlement, err := h.svc.VoidSettlement(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settlement)
}

// ExportSettlement streams the settlement as CSV (default) or an xlsx workbook.
func (h *Handler) ExportSettlement(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		h.fail(w, r, badRequest("format", "invalid_choice"))
		return
	}

	data, err := h.svc.ExportSettlement(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	contentType := "text/csv; charset=utf-8"
	if format == "xlsx" {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		err = excel.WriteSettlementWorkbook(&buf, data.Settlement, data.Lines, h.currency)
	} else {
		err = excel.WriteSettlementCSV(&buf, data.Lines, h.currency)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("X-Export-Source", data.Source)
	writeFile(w, contentType, excel.SettlementFileName(data.Settlement, format), buf.Bytes())
}

func pageParams(r *http.Request) (int, int, error) {
	query := r.URL.Query()
	limit, err := parseOptionalInt("limit", query.Get("limit"), 100)
	if err != nil {
		return 0, 0, err
	}
	offset, err := parseOptionalInt("offset", query.Get("offset"), 0)
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

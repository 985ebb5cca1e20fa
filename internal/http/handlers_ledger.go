package http

import (
	"net/http"
	"strings"
	"time"

	"labcafe/internal/auth"
	"labcafe/internal/domain"
	"labcafe/internal/repository"
	"labcafe/internal/service"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, offset, err := pageParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	from, err := parseOptionalTime("from", query.Get("from"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := parseOptionalTime("to", query.Get("to"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entries, err := h.svc.ListLedgerEntries(r.Context(), auth.ActorFromContext(r.Context()), repository.LedgerFilter{
		From:     from,
		To:       to,
		Category: strings.ToUpper(strings.TrimSpace(query.Get("category"))),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries, "count": len(entries)})
}

type ledgerEntryRequest struct {
	Description string     `json:"description"`
	AmountCents int64      `json:"amount_cents"`
	Category    string     `json:"category"`
	Timestamp   *time.Time `json:"timestamp"`
	UserID      *string    `json:"user_id"`
}

func (h *Handler) CreateLedgerEntry(w http.ResponseWriter, r *http.Request) {
	var req ledgerEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := h.svc.CreateLedgerEntry(r.Context(), auth.ActorFromContext(r.Context()), service.LedgerEntryInput{
		Description: req.Description,
		AmountCents: req.AmountCents,
		Category:    domain.LedgerCategory(req.Category),
		Timestamp:   req.Timestamp,
		UserID:      req.UserID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) LedgerBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.svc.CurrentBalance(r.Context(), auth.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance_cents": balance, "currency": h.currency})
}

func (h *Handler) LedgerSummary(w http.ResponseWriter, r *http.Request) {
	days, err := parseOptionalInt("days", r.URL.Query().Get("days"), 30)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	summary, err := h.svc.LedgerSummary(r.Context(), auth.ActorFromContext(r.Context()), days)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type purchaseOrderLineRequest struct {
	ItemID        string `json:"item_id"`
	Quantity      int    `json:"quantity"`
	UnitCostCents int64  `json:"unit_cost_cents"`
}

type purchaseOrderRequest struct {
	VendorName    string                     `json:"vendor_name"`
	Lines         []purchaseOrderLineRequest `json:"lines"`
	MiscCostCents int64                      `json:"misc_cost_cents"`
	Notes         string                     `json:"notes"`
}

func (h *Handler) ReceivePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req purchaseOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	in := service.PurchaseOrderInput{
		VendorName:    req.VendorName,
		MiscCostCents: req.MiscCostCents,
		Notes:         req.Notes,
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, service.PurchaseOrderLineInput{
			ItemID:        line.ItemID,
			Quantity:      line.Quantity,
			UnitCostCents: line.UnitCostCents,
		})
	}
	po, err := h.svc.ReceivePurchaseOrder(r.Context(), auth.ActorFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, po)
}

func (h *Handler) ListPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	list, err := h.svc.ListPurchaseOrders(r.Context(), auth.ActorFromContext(r.Context()), limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list, "count": len(list)})
}

func (h *Handler) GetPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	po, err := h.svc.GetPurchaseOrder(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, po)
}

func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entries, err := h.svc.ListAudit(r.Context(), auth.ActorFromContext(r.Context()), r.URL.Query().Get("search"), limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries, "count": len(entries)})
}

func (h *Handler) CountAudit(w http.ResponseWriter, r *http.Request) {
	total, err := h.svc.CountAudit(r.Context(), auth.ActorFromContext(r.Context()), r.URL.Query().Get("search"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": total})
}

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"labcafe/internal/auth"
	"labcafe/internal/domain"
	"labcafe/internal/excel"
	"labcafe/internal/repository"
	"labcafe/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	svc      *service.Service
	log      logrus.FieldLogger
	currency string
}

func NewHandler(svc *service.Service, log logrus.FieldLogger, defaultCurrency string) *Handler {
	return &Handler{svc: svc, log: log, currency: defaultCurrency}
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Me(r.Context(), auth.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type syncUserRequest struct {
	Email       string      `json:"email"`
	DisplayName string      `json:"display_name"`
	Role        domain.Role `json:"role"`
	IsActive    *bool       `json:"is_active"`
}

func (h *Handler) SyncUser(w http.ResponseWriter, r *http.Request) {
	var req syncUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	user, err := h.svc.SyncUser(r.Context(), auth.ActorFromContext(r.Context()), service.UserInput{
		ID:          chi.URLParam(r, "id"),
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Role:        domain.Role(strings.ToUpper(strings.TrimSpace(string(req.Role)))),
		IsActive:    active,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := parseOptionalInt("limit", query.Get("limit"), 200)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	offset, err := parseOptionalInt("offset", query.Get("offset"), 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	includeArchived, err := parseOptionalBool("include_archived", query.Get("include_archived"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	items, err := h.svc.ListItems(r.Context(), repository.ItemFilter{
		Search:          query.Get("search"),
		IncludeArchived: includeArchived,
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.LowStock(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (h *Handler) PriceHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.svc.PriceHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": history, "count": len(history)})
}

func (h *Handler) StockSeries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	to, err := parseOptionalTime("to", query.Get("to"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	from, err := parseOptionalTime("from", query.Get("from"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	end := time.Now().UTC()
	if to != nil {
		end = *to
	}
	start := end.AddDate(0, 0, -29)
	if from != nil {
		start = *from
	}

	points, err := h.svc.StockSeries(r.Context(), chi.URLParam(r, "id"), start, end)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": points})
}

type createItemRequest struct {
	Name              string `json:"name"`
	PriceCents        int64  `json:"price_cents"`
	Currency          string `json:"currency"`
	LowStockThreshold int    `json:"low_stock_threshold"`
}

func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.svc.CreateItem(r.Context(), auth.ActorFromContext(r.Context()), service.CreateItemInput{
		Name:              req.Name,
		PriceCents:        req.PriceCents,
		Currency:          req.Currency,
		LowStockThreshold: req.LowStockThreshold,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type updateItemRequest struct {
	Name              *string `json:"name"`
	PriceCents        *int64  `json:"price_cents"`
	LowStockThreshold *int    `json:"low_stock_threshold"`
}

func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.svc.UpdateItem(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"), service.UpdateItemInput{
		Name:              req.Name,
		PriceCents:        req.PriceCents,
		LowStockThreshold: req.LowStockThreshold,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type archiveItemRequest struct {
	ConfirmName string `json:"confirm_name"`
}

func (h *Handler) ArchiveItem(w http.ResponseWriter, r *http.Request) {
	var req archiveItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	item, err := h.svc.ArchiveItem(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"), req.ConfirmName)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) ReactivateItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.ReactivateItem(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type restockRequest struct {
	Quantity      int    `json:"quantity"`
	UnitCostCents *int64 `json:"unit_cost_cents"`
	Note          string `json:"note"`
}

func (h *Handler) Restock(w http.ResponseWriter, r *http.Request) {
	var req restockRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	item, err := h.svc.Restock(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"), service.RestockInput{
		Quantity:      req.Quantity,
		UnitCostCents: req.UnitCostCents,
		Note:          req.Note,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type writeOffRequest struct {
	Quantity      int    `json:"quantity"`
	Reason        string `json:"reason"`
	RecordLedger  bool   `json:"record_ledger"`
	UnitCostCents *int64 `json:"unit_cost_cents"`
}

func (h *Handler) WriteOff(w http.ResponseWriter, r *http.Request) {
	var req writeOffRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.svc.WriteOff(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"), service.WriteOffInput{
		Quantity:      req.Quantity,
		Reason:        req.Reason,
		RecordLedger:  req.RecordLedger,
		UnitCostCents: req.UnitCostCents,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type adjustStockRequest struct {
	Delta int    `json:"delta"`
	Note  string `json:"note"`
}

func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustStockRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	item, err := h.svc.AdjustStock(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"), service.AdjustStockInput{
		Delta: req.Delta,
		Note:  req.Note,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) ImportCatalogue(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.fail(w, r, badRequest("file", "invalid_multipart"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, badRequest("file", "required"))
		return
	}
	defer file.Close()

	rows, err := excel.ParseCatalogue(header.Filename, file, h.currency)
	if err != nil {
		h.fail(w, r, domain.NewError(domain.CodeValidation, err.Error()))
		return
	}
	result, err := h.svc.ImportCatalogue(r.Context(), auth.ActorFromContext(r.Context()), rows)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"file_name":  header.Filename,
		"total_rows": len(rows),
		"created":    result.Created,
		"repriced":   result.Repriced,
		"restocked":  result.Restocked,
		"skipped":    result.Skipped,
	})
}

func (h *Handler) ListConsumptions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := parseOptionalInt("limit", query.Get("limit"), 200)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	offset, err := parseOptionalInt("offset", query.Get("offset"), 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	includeReversed, err := parseOptionalBool("include_reversed", query.Get("include_reversed"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	list, err := h.svc.ListConsumptions(r.Context(), auth.ActorFromContext(r.Context()), repository.ConsumptionFilter{
		UserID:          strings.TrimSpace(query.Get("user_id")),
		IncludeReversed: includeReversed,
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list, "count": len(list)})
}

type consumeRequest struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	UserID   string `json:"user_id"`
}

func (h *Handler) RecordConsumption(w http.ResponseWriter, r *http.Request) {
	var req consumeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.svc.RecordConsumption(r.Context(), auth.ActorFromContext(r.Context()), service.ConsumeInput{
		ItemID:   req.ItemID,
		Quantity: req.Quantity,
		UserID:   req.UserID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type reverseRequest struct {
	Note string `json:"note"`
}

func (h *Handler) ReverseConsumption(w http.ResponseWriter, r *http.Request) {
	var req reverseRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.svc.ReverseConsumption(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"), req.Note)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// fail answers with the error envelope. Anything that is not a domain
// error is logged and reported as SERVER_ERROR.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	respondError(h.log, w, r, err)
}

func respondError(log logrus.FieldLogger, w http.ResponseWriter, r *http.Request, err error) {
	if de, ok := domain.AsError(err); ok {
		writeJSON(w, domain.HTTPStatus(de.Code), errorBody(de))
		return
	}
	log.WithFields(logrus.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"request_id": middleware.GetReqID(r.Context()),
	}).WithError(err).Error("request failed")
	writeJSON(w, http.StatusInternalServerError, errorBody(domain.NewError(domain.CodeServerError, "internal server error")))
}

func errorBody(de *domain.Error) map[string]any {
	return map[string]any{"error": de}
}

func badRequest(field, reason string) error {
	return domain.ErrValidation.WithDetails(map[string]string{field: reason})
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return domain.NewError(domain.CodeValidation, "invalid JSON body")
	}
	return nil
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return domain.NewError(domain.CodeValidation, "invalid JSON body")
	}
	return nil
}

func parseOptionalInt(field, raw string, defaultValue int) (int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, badRequest(field, "invalid_integer")
	}
	if parsed < 0 {
		return 0, badRequest(field, "must_not_be_negative")
	}
	return parsed, nil
}

func parseOptionalBool(field, raw string) (bool, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return false, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, badRequest(field, "invalid_boolean")
	}
	return parsed, nil
}

func parseOptionalTime(field, raw string) (*time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			utc := parsed.UTC()
			return &utc, nil
		}
	}
	return nil, badRequest(field, "invalid_time")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeFile(w http.ResponseWriter, contentType, fileName string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/flyerlens/backend/internal/analytics"
	"github.com/flyerlens/backend/internal/domain"
	"github.com/flyerlens/backend/internal/usecase"
)

// CatalogUsecase is the read side of the flyer dataset
type CatalogUsecase interface {
	Refresh(ctx context.Context) (*usecase.Snapshot, error)
	Reload(ctx context.Context) (*usecase.Snapshot, error)
	Snapshot() (*usecase.Snapshot, error)
	Weeks() ([]domain.WeekSummary, error)
	WeekView(weekKey string, q usecase.Query) (*usecase.WeekView, error)
	AllItems(q usecase.Query) (*usecase.WeekView, error)
	Evaluate(record domain.PriceRecord, weekKey string) (domain.DealInsight, bool, error)
	History(sku string) (*domain.PriceHistory, error)
	Deals(weekKey string, minTier domain.BadgeTier) ([]usecase.ItemView, error)
	Filters() (*usecase.FilterOptions, error)
}

// CartUsecase manages the shopping list
type CartUsecase interface {
	Add(ctx context.Context, record domain.PriceRecord) (*domain.CartEntry, error)
	Remove(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	SetBudget(ctx context.Context, amount decimal.Decimal) error
	Summary(ctx context.Context) (*domain.CartSummary, error)
	Export(ctx context.Context, exporter domain.Exporter) (string, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	catalog  CatalogUsecase
	cart     CartUsecase
	exporter domain.Exporter
}

// NewHandler creates a new HTTP handler. Any dependency may be nil, in
// which case its endpoints answer 503.
func NewHandler(catalog CatalogUsecase, cart CartUsecase, exporter domain.Exporter) *Handler {
	return &Handler{
		catalog:  catalog,
		cart:     cart,
		exporter: exporter,
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	response := gin.H{
		"status":  "healthy",
		"service": "flyerlens-backend",
		"version": "1.0.0",
	}
	if h.catalog != nil {
		if snap, err := h.catalog.Snapshot(); err == nil {
			response["records"] = len(snap.Records)
			response["loadedAt"] = snap.LoadedAt.Format(time.RFC3339)
		}
	}
	c.JSON(http.StatusOK, response)
}

// ListWeeks returns every week with records, most recent first
func (h *Handler) ListWeeks(c *gin.Context) {
	if !h.requireCatalog(c) {
		return
	}
	weeks, err := h.catalog.Weeks()
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"weeks": weeks})
}

// GetWeekItems returns the filtered items of one week. The week "latest"
// selects the most recent one.
func (h *Handler) GetWeekItems(c *gin.Context) {
	if !h.requireCatalog(c) {
		return
	}
	q, err := parseQuery(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	view, err := h.catalog.WeekView(c.Param("week"), q)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ListItems returns the filtered items of the whole dataset
func (h *Handler) ListItems(c *gin.Context) {
	if !h.requireCatalog(c) {
		return
	}
	q, err := parseQuery(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	view, err := h.catalog.AllItems(q)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ListDeals returns the week's items at or above ?tier (default "good")
func (h *Handler) ListDeals(c *gin.Context) {
	if !h.requireCatalog(c) {
		return
	}
	tier := domain.BadgeGood
	if raw := strings.TrimSpace(c.Query("tier")); raw != "" {
		parsed, ok := domain.ParseBadgeTier(raw)
		if !ok {
			h.respondError(c, invalid("unknown tier %q", raw))
			return
		}
		tier = parsed
	}

	deals, err := h.catalog.Deals(c.Query("week"), tier)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deals": deals, "count": len(deals)})
}

// GetHistory returns the price history of ?sku
func (h *Handler) GetHistory(c *gin.Context) {
	if !h.requireCatalog(c) {
		return
	}
	sku := strings.TrimSpace(c.Query("sku"))
	if sku == "" {
		h.respondError(c, invalid("sku is required"))
		return
	}
	history, err := h.catalog.History(sku)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// InsightRequest asks for the insight of an arbitrary record
type InsightRequest struct {
	Record domain.PriceRecord `json:"record"`
	Week   string             `json:"week"`
}

// EvaluateInsight computes the deal insight of a posted record
func (h *Handler) EvaluateInsight(c *gin.Context) {
	if !h.requireCatalog(c) {
		return
	}
	var req InsightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, invalid("invalid request body: %v", err))
		return
	}

	insight, ok, err := h.catalog.Evaluate(req.Record, req.Week)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"available": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": true, "insight": insight})
}

// GetFilters lists the stores and categories of the dataset
func (h *Handler) GetFilters(c *gin.Context) {
	if !h.requireCatalog(c) {
		return
	}
	filters, err := h.catalog.Filters()
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, filters)
}

// RefreshCatalog reloads the dataset. ?force=true bypasses the record cache.
func (h *Handler) RefreshCatalog(c *gin.Context) {
	if !h.requireCatalog(c) {
		return
	}
	load := h.catalog.Refresh
	if force, _ := strconv.ParseBool(c.Query("force")); force {
		load = h.catalog.Reload
	}

	snap, err := load(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"records":  len(snap.Records),
		"weeks":    len(snap.WeekKeys),
		"loadedAt": snap.LoadedAt.Format(time.RFC3339),
	})
}

// GetCart returns the grouped shopping list with its totals
func (h *Handler) GetCart(c *gin.Context) {
	if !h.requireCart(c) {
		return
	}
	summary, err := h.cart.Summary(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// AddCartItem adds the posted record to the shopping list
func (h *Handler) AddCartItem(c *gin.Context) {
	if !h.requireCart(c) {
		return
	}
	var record domain.PriceRecord
	if err := c.ShouldBindJSON(&record); err != nil {
		h.respondError(c, invalid("invalid request body: %v", err))
		return
	}
	entry, err := h.cart.Add(c.Request.Context(), record)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// RemoveCartItem deletes one entry of the shopping list
func (h *Handler) RemoveCartItem(c *gin.Context) {
	if !h.requireCart(c) {
		return
	}
	if err := h.cart.Remove(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearCart empties the shopping list
func (h *Handler) ClearCart(c *gin.Context) {
	if !h.requireCart(c) {
		return
	}
	if err := h.cart.Clear(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// BudgetRequest sets the shopping budget
type BudgetRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

// SetBudget stores the shopping budget
func (h *Handler) SetBudget(c *gin.Context) {
	if !h.requireCart(c) {
		return
	}
	var req BudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, invalid("invalid request body: %v", err))
		return
	}
	if req.Amount == nil {
		h.respondError(c, invalid("amount is required"))
		return
	}
	if err := h.cart.SetBudget(c.Request.Context(), *req.Amount); err != nil {
		h.respondError(c, err)
		return
	}
	h.GetCart(c)
}

// ExportCart writes the shopping list as CSV to the configured destination
func (h *Handler) ExportCart(c *gin.Context) {
	if !h.requireCart(c) {
		return
	}
	if h.exporter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "export not configured"})
		return
	}
	location, err := h.cart.Export(c.Request.Context(), h.exporter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"location": location})
}

func (h *Handler) requireCatalog(c *gin.Context) bool {
	if h.catalog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog not configured"})
		return false
	}
	return true
}

func (h *Handler) requireCart(c *gin.Context) bool {
	if h.cart == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shopping list not configured"})
		return false
	}
	return true
}

// parseQuery reads the list filters: store (repeatable or comma separated),
// category, q, sort and compact
func parseQuery(c *gin.Context) (usecase.Query, error) {
	var q usecase.Query
	for _, raw := range c.QueryArray("store") {
		for _, store := range strings.Split(raw, ",") {
			if store = strings.TrimSpace(store); store != "" {
				q.Stores = append(q.Stores, store)
			}
		}
	}
	q.Category = strings.TrimSpace(c.Query("category"))
	q.Search = c.Query("q")

	sort, ok := analytics.ParseSortMode(c.Query("sort"))
	if !ok {
		return q, invalid("unknown sort %q", c.Query("sort"))
	}
	q.Sort = sort

	if raw := c.Query("compact"); raw != "" {
		compact, err := strconv.ParseBool(raw)
		if err != nil {
			return q, invalid("compact must be a boolean")
		}
		q.Compact = compact
	}
	return q, nil
}

// respondError maps domain errors to HTTP status codes
func (h *Handler) respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidWeekKey):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrWeekNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrCartItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateCartItem):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrSourceFailure), errors.Is(err, domain.ErrExportFailure):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{domain.ErrInvalidRequest}, args...)...)
}

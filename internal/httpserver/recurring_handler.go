package httpserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pennywise/internal/apperr"
	"pennywise/internal/model"
	"pennywise/internal/recurring"
)

type RecurringHandler struct {
	service *recurring.Service
	logger  *zap.Logger
}

func NewRecurringHandler(service *recurring.Service, logger *zap.Logger) *RecurringHandler {
	return &RecurringHandler{service: service, logger: logger}
}

func requestMeta(c *gin.Context) model.RequestMeta {
	return model.RequestMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// pagination reads page and limit, defaulting to 1 and 20.
func pagination(c *gin.Context) (int, int, error) {
	page, err := intQuery(c, "page", recurring.DefaultPage)
	if err != nil {
		return 0, 0, err
	}
	limit, err := intQuery(c, "limit", recurring.DefaultLimit)
	if err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("%s must be an integer", key)
	}
	return v, nil
}

// Create handles POST /recurring
func (h *RecurringHandler) Create(c *gin.Context) {
	var spec model.RuleSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		respondError(c, h.logger, apperr.Validation("invalid request body"))
		return
	}

	rule, err := h.service.Create(c.Request.Context(), ownerID(c), spec, requestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusCreated, rule)
}

// List handles GET /recurring
func (h *RecurringHandler) List(c *gin.Context) {
	page, limit, err := pagination(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	filter := model.DefaultRuleFilter()
	if v := c.Query("active_only"); v != "" {
		activeOnly, err := strconv.ParseBool(v)
		if err != nil {
			respondError(c, h.logger, apperr.Validation("active_only must be a boolean"))
			return
		}
		filter.ActiveOnly = activeOnly
	}
	if v := c.Query("frequency"); v != "" {
		f := model.Frequency(v)
		filter.Frequency = &f
	}
	if v := c.Query("category"); v != "" {
		filter.Category = &v
	}
	if v := c.Query("kind"); v != "" {
		k := model.Kind(v)
		filter.Kind = &k
	}

	result, err := h.service.List(c.Request.Context(), ownerID(c), filter, page, limit, requestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondList(c, result.Items, result.Page, result.Limit, result.Total, len(result.Items), result.Pages())
}

// Get handles GET /recurring/:id
func (h *RecurringHandler) Get(c *gin.Context) {
	rule, err := h.service.Get(c.Request.Context(), ownerID(c), c.Param("id"), requestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, rule)
}

// Update handles PUT /recurring/:id
func (h *RecurringHandler) Update(c *gin.Context) {
	var patch model.RulePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, h.logger, apperr.Validation("invalid request body"))
		return
	}

	rule, err := h.service.Update(c.Request.Context(), ownerID(c), c.Param("id"), patch, requestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, rule)
}

// Delete handles DELETE /recurring/:id
func (h *RecurringHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), ownerID(c), c.Param("id"), requestMeta(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"id": c.Param("id"), "active": false})
}

// ExecuteNow handles POST /recurring/:id/execute-now
func (h *RecurringHandler) ExecuteNow(c *gin.Context) {
	rec, err := h.service.ExecuteNow(c.Request.Context(), ownerID(c), c.Param("id"), requestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, rec)
}

// GeneratedTransactions handles GET /recurring/:id/transactions
func (h *RecurringHandler) GeneratedTransactions(c *gin.Context) {
	page, limit, err := pagination(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	result, err := h.service.ListGeneratedTransactions(c.Request.Context(), ownerID(c), c.Param("id"), page, limit, requestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondList(c, result.Items, result.Page, result.Limit, result.Total, len(result.Items), result.Pages())
}

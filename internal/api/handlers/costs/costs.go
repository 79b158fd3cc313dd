package costs

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/electrolux-oss/infrawallet-sub000/internal/aggregate"
	"github.com/electrolux-oss/infrawallet-sub000/internal/config"
	"github.com/electrolux-oss/infrawallet-sub000/internal/model"
)

// Orchestrator is the aggregation surface the handlers depend on.
type Orchestrator interface {
	GetCostReports(ctx context.Context, query model.CostQuery) (model.CostReportsResponse, error)
	GetTagKeys(ctx context.Context, providerType config.ProviderType, query model.CostQuery) model.TagsResponse
	GetTagValues(ctx context.Context, providerType config.ProviderType, query model.CostQuery, tagKey string) model.TagsResponse
}

// Refresher triggers an on-demand snapshot rebuild.
type Refresher interface {
	TriggerRefresh()
}

// Handler serves the v1 cost endpoints.
type Handler struct {
	orchestrator Orchestrator
	refresher    Refresher
}

// NewHandler builds the handler. refresher may be nil when the snapshot
// store is not configured.
func NewHandler(orchestrator Orchestrator, refresher Refresher) *Handler {
	return &Handler{orchestrator: orchestrator, refresher: refresher}
}

// RegisterRoutes mounts the v1 API on the router.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/v1")
	v1.GET("/cost_reports", h.GetCostReports)
	v1.GET("/tag_keys", h.GetTagKeys)
	v1.GET("/tag_values", h.GetTagValues)
	v1.POST("/refresh", h.TriggerRefresh)
}

// GetCostReports answers GET /v1/cost_reports. Optional group/merge query
// params reshape the flat report list before it is returned.
func (h *Handler) GetCostReports(c *gin.Context) {
	query, err := parseQuery(c)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	response, err := h.orchestrator.GetCostReports(c.Request.Context(), query)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	reports := response.Reports
	if dimension := c.Query("aggregate_by"); dimension != "" {
		reports = aggregate.AggregateBy(reports, dimension)
	}
	if rawN := c.Query("top_n"); rawN != "" {
		n, err := strconv.Atoi(rawN)
		if err != nil || n < 0 {
			respondBadRequest(c, fmt.Sprintf("invalid top_n %q", rawN))
			return
		}
		reports = aggregate.MergeLongTail(reports, n)
	}

	respondOK(c, model.CostReportsResponse{Reports: reports, Errors: response.Errors})
}

// GetTagKeys answers GET /v1/tag_keys?provider=aws.
func (h *Handler) GetTagKeys(c *gin.Context) {
	providerType, query, err := parseTagRequest(c)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	respondOK(c, h.orchestrator.GetTagKeys(c.Request.Context(), providerType, query))
}

// GetTagValues answers GET /v1/tag_values?provider=aws&tag_key=env.
func (h *Handler) GetTagValues(c *gin.Context) {
	providerType, query, err := parseTagRequest(c)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	tagKey := c.Query("tag_key")
	if tagKey == "" {
		respondBadRequest(c, "tag_key is required")
		return
	}
	respondOK(c, h.orchestrator.GetTagValues(c.Request.Context(), providerType, query, tagKey))
}

// TriggerRefresh answers POST /v1/refresh. The rebuild runs in the
// background; the request returns immediately.
func (h *Handler) TriggerRefresh(c *gin.Context) {
	if h.refresher == nil {
		respondNotFound(c, "snapshot refresh is not configured")
		return
	}
	h.refresher.TriggerRefresh()
	respondOK(c, gin.H{"status": "refresh scheduled"})
}

func parseQuery(c *gin.Context) (model.CostQuery, error) {
	granularity := model.Granularity(c.DefaultQuery("granularity", string(model.GranularityMonthly)))

	start, err := parseDate(c.Query("start"))
	if err != nil {
		return model.CostQuery{}, fmt.Errorf("invalid start: %w", err)
	}
	end, err := parseDate(c.Query("end"))
	if err != nil {
		return model.CostQuery{}, fmt.Errorf("invalid end: %w", err)
	}

	query := model.CostQuery{
		Filters:     c.Query("filters"),
		Tags:        c.Query("tags"),
		Groups:      c.Query("groups"),
		Granularity: granularity,
		StartTime:   start,
		EndTime:     end,
	}
	if err := model.ValidateQuery(query); err != nil {
		return model.CostQuery{}, err
	}
	return query, nil
}

func parseTagRequest(c *gin.Context) (config.ProviderType, model.CostQuery, error) {
	raw := c.Query("provider")
	if raw == "" {
		return "", model.CostQuery{}, fmt.Errorf("provider is required")
	}
	providerType := config.ProviderType(raw)
	if !lo.Contains(config.AllProviderTypes, providerType) {
		return "", model.CostQuery{}, fmt.Errorf("unknown provider %q", raw)
	}
	query, err := parseQuery(c)
	return providerType, query, err
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("date is required (YYYY-MM-DD)")
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

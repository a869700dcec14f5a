package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sitesafe/hsetrack/internal/access"
	"github.com/sitesafe/hsetrack/internal/datastore"
	"github.com/sitesafe/hsetrack/internal/datastore/entities"
	"github.com/sitesafe/hsetrack/internal/errors"
	"github.com/sitesafe/hsetrack/internal/findings"
)

// initFindingRoutes registers finding endpoints
func (c *Controller) initFindingRoutes() {
	c.Group.GET("/findings", c.ListFindings, c.authMiddleware)
	c.Group.GET("/findings/verified", c.ListVerifiedFindings, c.authMiddleware)
	c.Group.GET("/findings/:id", c.GetFinding, c.authMiddleware)
	c.Group.POST("/findings", c.CreateFinding, c.authMiddleware)
	c.Group.PATCH("/findings/:id/status", c.SetFindingStatus, c.authMiddleware)
}

// ListFindings handles GET /findings with optional status,
// verification_status, category, limit and offset query parameters.
func (c *Controller) ListFindings(ctx echo.Context) error {
	if _, err := c.requireActor(ctx, access.ActionRead); err != nil {
		return c.handleServiceError(ctx, err, "Not allowed to list findings")
	}

	filter := datastore.ListFilter{
		Status:             entities.FindingStatus(ctx.QueryParam("status")),
		VerificationStatus: entities.VerificationStatus(ctx.QueryParam("verification_status")),
		HazardCategory:     ctx.QueryParam("category"),
	}
	var err error
	if filter.Limit, err = queryInt(ctx, "limit"); err != nil {
		return c.handleServiceError(ctx, err, "Invalid limit")
	}
	if filter.Offset, err = queryInt(ctx, "offset"); err != nil {
		return c.handleServiceError(ctx, err, "Invalid offset")
	}

	list, err := c.findings.List(ctx.Request().Context(), filter)
	if err != nil {
		return c.handleServiceError(ctx, err, "Failed to list findings")
	}
	return ctx.JSON(http.StatusOK, DataResponse[[]FindingResponse]{Data: toFindingResponses(list)})
}

// ListVerifiedFindings handles GET /findings/verified
func (c *Controller) ListVerifiedFindings(ctx echo.Context) error {
	if _, err := c.requireActor(ctx, access.ActionRead); err != nil {
		return c.handleServiceError(ctx, err, "Not allowed to list findings")
	}
	list, err := c.findings.ListVerified(ctx.Request().Context())
	if err != nil {
		return c.handleServiceError(ctx, err, "Failed to list verified findings")
	}
	return ctx.JSON(http.StatusOK, DataResponse[[]FindingResponse]{Data: toFindingResponses(list)})
}

// GetFinding handles GET /findings/:id
func (c *Controller) GetFinding(ctx echo.Context) error {
	if _, err := c.requireActor(ctx, access.ActionRead); err != nil {
		return c.handleServiceError(ctx, err, "Not allowed to read findings")
	}
	id, err := parseID(ctx)
	if err != nil {
		return c.handleServiceError(ctx, err, "Invalid finding id")
	}
	f, err := c.findings.Get(ctx.Request().Context(), id)
	if err != nil {
		return c.handleServiceError(ctx, err, "Failed to get finding")
	}
	return ctx.JSON(http.StatusOK, DataResponse[FindingResponse]{Data: toFindingResponse(f)})
}

// CreateFinding handles POST /findings
func (c *Controller) CreateFinding(ctx echo.Context) error {
	if _, err := c.requireActor(ctx, access.ActionCreate); err != nil {
		return c.handleServiceError(ctx, err, "Not allowed to create findings")
	}

	req := &CreateFindingRequest{}
	if err := ctx.Bind(req); err != nil {
		return c.HandleError(ctx, err, "Invalid request format", http.StatusBadRequest)
	}

	f, err := c.findings.Create(ctx.Request().Context(), findings.CreateInput{
		OccurredAt:        req.OccurredAt,
		Location:          req.Location,
		Source:            req.Source,
		Description:       req.Description,
		HazardCategory:    req.HazardCategory,
		RiskLevel:         req.RiskLevel,
		RemediationAction: req.RemediationAction,
		ResponsibleParty:  req.ResponsibleParty,
		DueDate:           req.DueDate,
	})
	if err != nil {
		return c.handleServiceError(ctx, err, "Failed to create finding")
	}
	return ctx.JSON(http.StatusCreated, DataResponse[FindingResponse]{Data: toFindingResponse(f)})
}

// SetFindingStatus handles PATCH /findings/:id/status
func (c *Controller) SetFindingStatus(ctx echo.Context) error {
	actor, ok := access.ActorFrom(ctx)
	if !ok {
		return c.HandleError(ctx, nil, "Authentication required", http.StatusUnauthorized)
	}
	id, err := parseID(ctx)
	if err != nil {
		return c.handleServiceError(ctx, err, "Invalid finding id")
	}
	req := &StatusRequest{}
	if err := ctx.Bind(req); err != nil {
		return c.HandleError(ctx, err, "Invalid request format", http.StatusBadRequest)
	}

	f, err := c.findings.SetStatus(ctx.Request().Context(), id, actor, entities.FindingStatus(req.Status))
	if err != nil {
		return c.handleServiceError(ctx, err, "Failed to update finding status")
	}
	return ctx.JSON(http.StatusOK, DataResponse[FindingResponse]{Data: toFindingResponse(f)})
}

func queryInt(ctx echo.Context, name string) (int, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New(errors.NewStd(name+" must be a non-negative integer")).
			Component("api").
			Category(errors.CategoryValidation).
			Context(name, raw).
			Build()
	}
	return v, nil
}

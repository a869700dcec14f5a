package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sitesafe/hsetrack/internal/access"
)

func (c *Controller) initSummaryRoutes() {
	c.Group.GET("/summary", c.GetSummary, c.authMiddleware)
}

// GetSummary handles GET /summary
func (c *Controller) GetSummary(ctx echo.Context) error {
	if _, err := c.requireActor(ctx, access.ActionRead); err != nil {
		return c.handleServiceError(ctx, err, "Not allowed to read the summary")
	}
	s, err := c.aggregator.Summarize(ctx.Request().Context())
	if err != nil {
		return c.handleServiceError(ctx, err, "Failed to build summary")
	}
	return ctx.JSON(http.StatusOK, DataResponse[SummaryResponse]{Data: toSummaryResponse(s)})
}

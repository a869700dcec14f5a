package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sitesafe/hsetrack/internal/access"
	"github.com/sitesafe/hsetrack/internal/datastore/entities"
)

func (c *Controller) initVerificationRoutes() {
	c.Group.PUT("/findings/:id/verify", c.VerifyFinding, c.authMiddleware)
}

// VerifyFinding handles PUT /findings/:id/verify. Only admins may decide
// and the first decision is final: later calls get 409.
func (c *Controller) VerifyFinding(ctx echo.Context) error {
	actor, ok := access.ActorFrom(ctx)
	if !ok {
		return c.HandleError(ctx, nil, "Authentication required", http.StatusUnauthorized)
	}
	id, err := parseID(ctx)
	if err != nil {
		return c.handleServiceError(ctx, err, "Invalid finding id")
	}

	req := &VerifyRequest{}
	if err := ctx.Bind(req); err != nil {
		return c.HandleError(ctx, err, "Invalid request format", http.StatusBadRequest)
	}

	f, err := c.verifier.Verify(ctx.Request().Context(), id, actor,
		entities.VerificationStatus(req.VerificationStatus), req.VerificationComment)
	if err != nil {
		return c.handleServiceError(ctx, err, "Failed to verify finding")
	}
	return ctx.JSON(http.StatusOK, DataResponse[FindingResponse]{Data: toFindingResponse(f)})
}

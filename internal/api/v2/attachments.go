package api

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sitesafe/hsetrack/internal/access"
	"github.com/sitesafe/hsetrack/internal/attachments"
)

// uploadField is the multipart field carrying evidence files.
const uploadField = "files"

func (c *Controller) initAttachmentRoutes() {
	c.Group.POST("/findings/:id/attachments", c.UploadAttachments, c.authMiddleware)
	c.Group.GET("/findings/:id/attachments", c.ListAttachments, c.authMiddleware)
}

// UploadAttachments handles POST /findings/:id/attachments with 1 to 10
// files in the "files" field. The response lists the files that were
// stored; files that failed are omitted.
func (c *Controller) UploadAttachments(ctx echo.Context) error {
	if _, err := c.requireActor(ctx, access.ActionAttach); err != nil {
		return c.handleServiceError(ctx, err, "Not allowed to upload attachments")
	}
	id, err := parseID(ctx)
	if err != nil {
		return c.handleServiceError(ctx, err, "Invalid finding id")
	}

	form, err := ctx.MultipartForm()
	if err != nil {
		return c.HandleError(ctx, err, "Expected a multipart form", http.StatusBadRequest)
	}
	defer func() { _ = form.RemoveAll() }()

	headers := form.File[uploadField]
	uploads := make([]attachments.FileUpload, 0, len(headers))
	for _, fh := range headers {
		uploads = append(uploads, attachments.FileUpload{
			Filename: fh.Filename,
			Size:     fh.Size,
			Open:     openPart(fh),
		})
	}

	stored, err := c.uploader.Attach(ctx.Request().Context(), id, uploads)
	if err != nil {
		return c.handleServiceError(ctx, err, "Failed to store attachments")
	}
	return ctx.JSON(http.StatusCreated, DataResponse[[]AttachmentResponse]{Data: toAttachmentResponses(stored)})
}

func openPart(fh *multipart.FileHeader) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return fh.Open()
	}
}

// ListAttachments handles GET /findings/:id/attachments
func (c *Controller) ListAttachments(ctx echo.Context) error {
	if _, err := c.requireActor(ctx, access.ActionRead); err != nil {
		return c.handleServiceError(ctx, err, "Not allowed to read attachments")
	}
	id, err := parseID(ctx)
	if err != nil {
		return c.handleServiceError(ctx, err, "Invalid finding id")
	}
	list, err := c.uploader.ListAttachments(ctx.Request().Context(), id)
	if err != nil {
		return c.handleServiceError(ctx, err, "Failed to list attachments")
	}
	return ctx.JSON(http.StatusOK, DataResponse[[]AttachmentResponse]{Data: toAttachmentResponses(list)})
}

package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/evms/internal/apperror"
	"github.com/iliyamo/evms/internal/model"
	"github.com/iliyamo/evms/internal/service"
)

type documentService interface {
	Upload(ctx context.Context, actor service.Actor, eventID uint64, in service.UploadInput) (*model.Document, error)
	List(ctx context.Context, eventID uint64) ([]model.Document, error)
	Get(ctx context.Context, id uint64) (*model.Document, error)
	Open(ctx context.Context, id uint64) (*model.Document, *os.File, error)
	Delete(ctx context.Context, actor service.Actor, id uint64) error
}

// DocumentHandler serves /api/documents.
type DocumentHandler struct {
	Documents documentService
}

func NewDocumentHandler(docs documentService) *DocumentHandler {
	return &DocumentHandler{Documents: docs}
}

// Upload handles multipart POST /api/documents with fields file, eventId
// and an optional description.
func (h *DocumentHandler) Upload(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	eventID, err := strconv.ParseUint(strings.TrimSpace(c.FormValue("eventId")), 10, 64)
	if err != nil || eventID == 0 {
		return apperror.Validation("validation failed", map[string]string{"eventId": "is required"})
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return apperror.Validation("validation failed", map[string]string{"file": "is required"})
	}
	src, err := fh.Open()
	if err != nil {
		return apperror.Internal(err)
	}
	defer src.Close()

	var desc *string
	if d := c.FormValue("description"); d != "" {
		desc = &d
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	doc, err := h.Documents.Upload(ctx, actor, eventID, service.UploadInput{File: src, OriginalName: fh.Filename, Description: desc})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, doc)
}

// List handles GET /api/documents?eventId=.
func (h *DocumentHandler) List(c echo.Context) error {
	eventID, err := queryUint(c, "eventId")
	if err != nil {
		return err
	}
	if eventID == nil {
		return apperror.Validation("validation failed", map[string]string{"eventId": "is required"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	out, err := h.Documents.List(ctx, *eventID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items(out))
}

func (h *DocumentHandler) Get(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	doc, err := h.Documents.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, doc)
}

// Download handles GET /api/documents/:id/download.  The file is sent as
// an attachment under its original name; range requests are honoured.
func (h *DocumentHandler) Download(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	doc, f, err := h.Documents.Open(c.Request().Context(), id)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return apperror.Internal(err)
	}
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, doc.MimeType)
	res.Header().Set(echo.HeaderXContentTypeOptions, "nosniff")
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", doc.OriginalName))
	http.ServeContent(res, c.Request(), doc.OriginalName, st.ModTime(), f)
	return nil
}

func (h *DocumentHandler) Delete(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Documents.Delete(ctx, actor, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

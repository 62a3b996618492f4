package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/evms/internal/apperror"
	"github.com/iliyamo/evms/internal/model"
	"github.com/iliyamo/evms/internal/service"
)

type migrationService interface {
	Upload(ctx context.Context, actor service.Actor, in service.MigrationUploadInput) (*model.MigrationLog, error)
	Retry(ctx context.Context, id uint64) (*model.MigrationLog, error)
	Get(ctx context.Context, id uint64) (*model.MigrationLog, error)
	List(ctx context.Context, status string) ([]model.MigrationLog, error)
}

// MigrationHandler serves /api/migration.  Uploads are processed in the
// background; clients poll the log.
type MigrationHandler struct {
	Migrations migrationService
}

func NewMigrationHandler(m migrationService) *MigrationHandler {
	return &MigrationHandler{Migrations: m}
}

// Upload handles multipart POST /api/migration/upload with fields file and
// migrationType.  It answers 202 with the processing log.
func (h *MigrationHandler) Upload(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
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

	ctx, cancel := requestCtx(c)
	defer cancel()
	m, err := h.Migrations.Upload(ctx, actor, service.MigrationUploadInput{
		File:          src,
		OriginalName:  fh.Filename,
		MigrationType: c.FormValue("migrationType"),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, m)
}

// List handles GET /api/migration/logs?status=.
func (h *MigrationHandler) List(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	out, err := h.Migrations.List(ctx, strings.TrimSpace(c.QueryParam("status")))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items(out))
}

func (h *MigrationHandler) Get(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	m, err := h.Migrations.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

// Retry handles POST /api/migration/logs/:id/retry.
func (h *MigrationHandler) Retry(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	m, err := h.Migrations.Retry(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, m)
}

// Package handler exposes the EVMS REST endpoints.  Handlers bind and
// validate the request, turn the caller's Identity into a service.Actor
// and translate service results into JSON; every error is returned to the
// central error handler.
package handler

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/evms/internal/apperror"
	"github.com/iliyamo/evms/internal/middleware"
	"github.com/iliyamo/evms/internal/service"
)

// requestTimeout bounds the database work of one request.
const requestTimeout = 5 * time.Second

func requestCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// actorOf returns the authenticated caller.
func actorOf(c echo.Context) (service.Actor, error) {
	id, err := middleware.MustIdentity(c)
	if err != nil {
		return service.Actor{}, err
	}
	return service.Actor{UserID: id.UserID, Role: id.Role}, nil
}

// idParam parses a positive numeric path parameter.
func idParam(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperror.Validation("validation failed", map[string]string{name: "must be a positive integer"})
	}
	return id, nil
}

// bind decodes the body into req and runs the registered validator.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperror.ErrValidation.WithMessage("invalid request body")
	}
	return c.Validate(req)
}

// queryUint parses an optional positive integer query parameter.
func queryUint(c echo.Context, name string) (*uint64, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		return nil, apperror.Validation("validation failed", map[string]string{name: "must be a positive integer"})
	}
	return &v, nil
}

// queryInt parses an optional integer query parameter; 0 when absent.
func queryInt(c echo.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperror.Validation("validation failed", map[string]string{name: "must be a non-negative integer"})
	}
	return v, nil
}

// queryBool reports whether the parameter is "true" or "1".
func queryBool(c echo.Context, name string) bool {
	v := strings.ToLower(strings.TrimSpace(c.QueryParam(name)))
	return v == "true" || v == "1"
}

// items wraps a list response.
func items[T any](list []T) echo.Map {
	if list == nil {
		list = []T{}
	}
	return echo.Map{"items": list}
}

// writeCSV streams a header row and records as a text/csv attachment.
func writeCSV(c echo.Context, filename string, header []string, records [][]string) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	res.WriteHeader(http.StatusOK)
	w := csv.NewWriter(res)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(records); err != nil {
		return err
	}
	return w.Error()
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func num[T int | uint64](p *T) string {
	if p == nil {
		return ""
	}
	return fmt.Sprint(*p)
}

func money(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func moneyPtr(p *float64) string {
	if p == nil {
		return ""
	}
	return money(*p)
}

func stamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

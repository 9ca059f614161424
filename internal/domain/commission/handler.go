package commission

import (
	"fmt"
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/labstack/echo/v4"

	"github.com/woundcare/clinic/internal/platform/auth"
	"github.com/woundcare/clinic/internal/platform/httperr"
	"github.com/woundcare/clinic/pkg/dates"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	reports := api.Group("/commission-reports", auth.RequireRole(auth.RoleBilling, auth.RoleSales))
	reports.GET("", h.Report)
	reports.GET("/periods", h.Periods)
	reports.GET("/export.csv", h.ExportCSV)
	reports.GET("/export.xlsx", h.ExportXLSX)

	payouts := api.Group("/commission-payouts", auth.RequireRole(auth.RoleBilling))
	payouts.GET("", h.ListPayouts)
	payouts.PUT("", h.PutPayout)
	payouts.DELETE("", h.DeletePayout)
}

func (h *Handler) Report(c echo.Context) error {
	var (
		f   Filter
		err error
	)
	if f.SalesRepID, err = httperr.QueryID(c, "salesRepId"); err != nil {
		return err
	}
	f.Status = c.QueryParam("invoiceStatus")
	if f.From, err = dates.ParseOptional(c.QueryParam("from")); err != nil {
		return httperr.Invalid("from", err.Error())
	}
	if f.To, err = dates.ParseOptional(c.QueryParam("to")); err != nil {
		return httperr.Invalid("to", err.Error())
	}
	if m := c.QueryParam("month"); m != "" {
		month, err := h.svc.Month(m)
		if err != nil {
			return err
		}
		f.From, f.To = month, dates.LastOfMonth(month)
	}
	rows, err := h.svc.Report(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *Handler) monthAndRep(c echo.Context) (civil.Date, *int64, error) {
	month, err := h.svc.Month(c.QueryParam("month"))
	if err != nil {
		return civil.Date{}, nil, err
	}
	rep, err := httperr.QueryID(c, "salesRepId")
	if err != nil {
		return civil.Date{}, nil, err
	}
	return month, rep, nil
}

func (h *Handler) Periods(c echo.Context) error {
	month, rep, err := h.monthAndRep(c)
	if err != nil {
		return err
	}
	periods, err := h.svc.Periods(c.Request().Context(), month, rep)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, periods)
}

func (h *Handler) ExportCSV(c echo.Context) error  { return h.export(c, FormatCSV) }
func (h *Handler) ExportXLSX(c echo.Context) error { return h.export(c, FormatXLSX) }

func (h *Handler) export(c echo.Context, format string) error {
	month, rep, err := h.monthAndRep(c)
	if err != nil {
		return err
	}
	f, err := h.svc.Export(c.Request().Context(), month, rep, format)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", f.Name))
	return c.Blob(http.StatusOK, f.ContentType, f.Data)
}

// ListPayouts returns the payouts recorded for ?month (default current).
func (h *Handler) ListPayouts(c echo.Context) error {
	month, err := h.svc.Month(c.QueryParam("month"))
	if err != nil {
		return err
	}
	payouts, err := h.svc.Payouts(c.Request().Context(), month)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, payouts)
}

func (h *Handler) PutPayout(c echo.Context) error {
	var req PayoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	p, err := h.svc.PutPayout(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePayout(c echo.Context) error {
	rep, err := httperr.QueryID(c, "salesRepId")
	if err != nil {
		return err
	}
	verr := httperr.Validation("validation failed")
	if rep == nil {
		verr.Add("salesRepId", "is required")
	}
	start, err := civil.ParseDate(c.QueryParam("periodStart"))
	if err != nil {
		verr.Add("periodStart", "must be a YYYY-MM-DD date")
	}
	end, err := civil.ParseDate(c.QueryParam("periodEnd"))
	if err != nil {
		verr.Add("periodEnd", "must be a YYYY-MM-DD date")
	}
	if err := verr.OrNil(); err != nil {
		return err
	}
	if err := h.svc.DeletePayout(c.Request().Context(), PayoutKey{SalesRepID: *rep, PeriodStart: start, PeriodEnd: end}); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

package invoice

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/woundcare/clinic/internal/platform/auth"
	"github.com/woundcare/clinic/internal/platform/export"
	"github.com/woundcare/clinic/internal/platform/httperr"
	"github.com/woundcare/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/invoices", auth.RequireRole(auth.RoleBilling))
	g.GET("", h.List)
	g.GET("/export.csv", h.ExportCSV)
	g.GET("/export.xlsx", h.ExportXLSX)
	g.GET("/:id", h.Get)
	g.GET("/:id/pdf", h.PDF)
	g.POST("", h.Create)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

func bindValid(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.Validate(dst)
}

func attach(c echo.Context, f *export.File) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", f.Name))
	return c.Blob(http.StatusOK, f.ContentType, f.Data)
}

func (h *Handler) Create(c echo.Context) error {
	var req Request
	if err := bindValid(c, &req); err != nil {
		return err
	}
	inv, err := h.svc.CreateInvoice(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, inv)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := httperr.IDParam(c, "id")
	if err != nil {
		return err
	}
	inv, err := h.svc.GetInvoice(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := httperr.IDParam(c, "id")
	if err != nil {
		return err
	}
	var req Request
	if err := bindValid(c, &req); err != nil {
		return err
	}
	inv, err := h.svc.UpdateInvoice(c.Request().Context(), id, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := httperr.IDParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteInvoice(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) List(c echo.Context) error {
	f := Filter{Status: c.QueryParam("status"), Search: c.QueryParam("search")}
	var err error
	if f.PatientID, err = httperr.QueryID(c, "patientId"); err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	invs, total, err := h.svc.ListInvoices(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if invs == nil {
		invs = []*Invoice{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(invs, total, pg))
}

func (h *Handler) ExportCSV(c echo.Context) error  { return h.export(c, FormatCSV) }
func (h *Handler) ExportXLSX(c echo.Context) error { return h.export(c, FormatXLSX) }

func (h *Handler) export(c echo.Context, format string) error {
	f, err := h.svc.Export(c.Request().Context(), c.QueryParam("status"), format)
	if err != nil {
		return err
	}
	return attach(c, f)
}

func (h *Handler) PDF(c echo.Context) error {
	id, err := httperr.IDParam(c, "id")
	if err != nil {
		return err
	}
	f, err := h.svc.PDF(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return attach(c, f)
}

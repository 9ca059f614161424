package treatment

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/woundcare/clinic/internal/platform/auth"
	"github.com/woundcare/clinic/internal/platform/httperr"
	"github.com/woundcare/clinic/pkg/dates"
	"github.com/woundcare/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/treatments", auth.RequireRole(auth.RoleBilling, auth.RoleClinician, auth.RoleSales))
	read.GET("", h.List)
	read.GET("/all", h.All)
	read.GET("/metrics", h.Metrics)
	read.GET("/:id", h.Get)

	write := api.Group("/treatments", auth.RequireRole(auth.RoleClinician, auth.RoleBilling))
	write.POST("", h.Create)
	write.PUT("/:id", h.Update)

	billing := api.Group("/treatments", auth.RequireRole(auth.RoleBilling))
	billing.PATCH("/:id/invoice-status", h.UpdateInvoiceStatus)
	billing.DELETE("/:id", h.Delete)
}

func bindValid(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.Validate(dst)
}

func filterFromQuery(c echo.Context) (Filter, error) {
	var f Filter
	var err error
	if f.PatientID, err = httperr.QueryID(c, "patientId"); err != nil {
		return f, err
	}
	if f.SalesRepID, err = httperr.QueryID(c, "salesRepId"); err != nil {
		return f, err
	}
	f.Status = c.QueryParam("invoiceStatus")
	if f.From, err = dates.ParseOptional(c.QueryParam("from")); err != nil {
		return f, httperr.Invalid("from", err.Error())
	}
	if f.To, err = dates.ParseOptional(c.QueryParam("to")); err != nil {
		return f, httperr.Invalid("to", err.Error())
	}
	return f, nil
}

func (h *Handler) Create(c echo.Context) error {
	var req Request
	if err := bindValid(c, &req); err != nil {
		return err
	}
	t, err := h.svc.CreateTreatment(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := httperr.IDParam(c, "id")
	if err != nil {
		return err
	}
	t, err := h.svc.GetTreatment(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
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
	t, err := h.svc.UpdateTreatment(c.Request().Context(), id, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) UpdateInvoiceStatus(c echo.Context) error {
	id, err := httperr.IDParam(c, "id")
	if err != nil {
		return err
	}
	var req StatusRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	t, err := h.svc.UpdateInvoiceStatus(c.Request().Context(), id, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := httperr.IDParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteTreatment(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) List(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	ts, total, err := h.svc.ListTreatments(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if ts == nil {
		ts = []*Treatment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(ts, total, pg))
}

// All returns the unpaged list the dashboards work from.
func (h *Handler) All(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	ts, err := h.svc.AllTreatments(c.Request().Context(), f)
	if err != nil {
		return err
	}
	if ts == nil {
		ts = []*Treatment{}
	}
	return c.JSON(http.StatusOK, ts)
}

func (h *Handler) Metrics(c echo.Context) error {
	from, err := dates.ParseOptional(c.QueryParam("from"))
	if err != nil {
		return httperr.Invalid("from", err.Error())
	}
	to, err := dates.ParseOptional(c.QueryParam("to"))
	if err != nil {
		return httperr.Invalid("to", err.Error())
	}
	m, err := h.svc.Metrics(c.Request().Context(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

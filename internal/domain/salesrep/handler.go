package salesrep

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/woundcare/clinic/internal/platform/auth"
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
	read := api.Group("/sales-reps", auth.RequireRole(auth.RoleBilling, auth.RoleClinician, auth.RoleSales))
	read.GET("", h.List)
	read.GET("/:id", h.Get)

	write := api.Group("/sales-reps", auth.RequireRole(auth.RoleBilling))
	write.POST("", h.Create)
	write.PUT("/:id", h.Update)
	write.DELETE("/:id", h.Delete)
}

func (h *Handler) bind(c echo.Context) (*Request, error) {
	var req Request
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (h *Handler) Create(c echo.Context) error {
	req, err := h.bind(c)
	if err != nil {
		return err
	}
	rep, err := h.svc.CreateSalesRep(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rep)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := httperr.IDParam(c, "id")
	if err != nil {
		return err
	}
	rep, err := h.svc.GetSalesRep(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := httperr.IDParam(c, "id")
	if err != nil {
		return err
	}
	req, err := h.bind(c)
	if err != nil {
		return err
	}
	rep, err := h.svc.UpdateSalesRep(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := httperr.IDParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteSalesRep(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{Search: c.QueryParam("search")}
	if v := c.QueryParam("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return httperr.Invalid("active", "must be true or false")
		}
		f.Active = &active
	}
	reps, total, err := h.svc.ListSalesReps(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if reps == nil {
		reps = []*SalesRep{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(reps, total, pg))
}

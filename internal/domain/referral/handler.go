package referral

import (
	"net/http"

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

// RegisterRoutes mounts /referrals. Intake is shared by clinicians and sales;
// billing only reads.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/referrals", auth.RequireRole(auth.RoleBilling, auth.RoleClinician, auth.RoleSales))
	read.GET("", h.List)
	read.GET("/board", h.Board)
	read.GET("/:id", h.Get)

	write := api.Group("/referrals", auth.RequireRole(auth.RoleClinician, auth.RoleSales))
	write.POST("", h.Create)
	write.PUT("/:id", h.Update)
	write.PATCH("/:id/move", h.Move)
	write.DELETE("/:id", h.Delete)

	convert := api.Group("/referrals", auth.RequireRole(auth.RoleClinician))
	convert.POST("/:id/convert", h.Convert)
}

func bindValid(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.Validate(dst)
}

func (h *Handler) Create(c echo.Context) error {
	var req Request
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ref, err := h.svc.CreateReferral(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, ref)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := httperr.IDParam(c, "id")
	if err != nil {
		return err
	}
	ref, err := h.svc.GetReferral(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ref)
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
	ref, err := h.svc.UpdateReferral(c.Request().Context(), id, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ref)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := httperr.IDParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteReferral(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	repID, err := httperr.QueryID(c, "salesRepId")
	if err != nil {
		return err
	}
	f := Filter{Status: c.QueryParam("status"), SalesRepID: repID, Search: c.QueryParam("search")}
	refs, total, err := h.svc.ListReferrals(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if refs == nil {
		refs = []*Referral{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(refs, total, pg))
}

func (h *Handler) Board(c echo.Context) error {
	cols, err := h.svc.Board(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cols)
}

func (h *Handler) Move(c echo.Context) error {
	id, err := httperr.IDParam(c, "id")
	if err != nil {
		return err
	}
	var req MoveRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ref, err := h.svc.MoveReferral(c.Request().Context(), id, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ref)
}

func (h *Handler) Convert(c echo.Context) error {
	id, err := httperr.IDParam(c, "id")
	if err != nil {
		return err
	}
	var req ConvertRequest
	if c.Request().ContentLength != 0 {
		if err := bindValid(c, &req); err != nil {
			return err
		}
	}
	p, err := h.svc.ConvertReferral(c.Request().Context(), id, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

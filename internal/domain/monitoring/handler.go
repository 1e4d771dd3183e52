package monitoring

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/icuward/internal/domain/ward"
	"github.com/ehr/icuward/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	clinical := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor, auth.RoleNurse))
	clinical.POST("/vitals", h.RecordVitals)
	clinical.GET("/vitals/latest/all", h.LatestAll)
	clinical.GET("/vitals/:patient_id", h.History)
	clinical.GET("/alerts", h.ListAlerts)
	clinical.GET("/alerts/recent", h.RecentAlerts)
	clinical.PUT("/alerts/:id/acknowledge", h.Acknowledge)
}

func uuidParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func limitParam(c echo.Context) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	return n, nil
}

func (h *Handler) RecordVitals(c echo.Context) error {
	var in VitalsInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Ingest(c.Request().Context(), in)
	if err != nil {
		return ward.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) History(c echo.Context) error {
	id, err := uuidParam(c, "patient_id")
	if err != nil {
		return err
	}
	limit, err := limitParam(c)
	if err != nil {
		return err
	}
	items, err := h.svc.History(c.Request().Context(), id, limit)
	if err != nil {
		return ward.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) LatestAll(c echo.Context) error {
	items, err := h.svc.LatestAll(c.Request().Context())
	if err != nil {
		return ward.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListAlerts(c echo.Context) error {
	limit, err := limitParam(c)
	if err != nil {
		return err
	}
	f := AlertFilter{Severity: AlertSeverity(c.QueryParam("severity"))}
	if raw := c.QueryParam("acknowledged"); raw != "" {
		ack, err := strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid acknowledged")
		}
		f.Acknowledged = &ack
	}
	if raw := c.QueryParam("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	items, err := h.svc.ListAlerts(c.Request().Context(), f, limit)
	if err != nil {
		return ward.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) RecentAlerts(c echo.Context) error {
	items, err := h.svc.RecentAlerts(c.Request().Context())
	if err != nil {
		return ward.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Acknowledge(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	a, err := h.svc.Acknowledge(ctx, id, auth.UserIDFromContext(ctx))
	if err != nil {
		return ward.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

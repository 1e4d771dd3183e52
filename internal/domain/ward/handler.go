package ward

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/icuward/internal/platform/auth"
	"github.com/ehr/icuward/pkg/pagination"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – any clinician
	readGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor, auth.RoleNurse))
	readGroup.GET("/beds", h.ListBeds)
	readGroup.GET("/beds/stats", h.BedStats)
	readGroup.GET("/beds/stats/export", h.ExportBedStats)
	readGroup.GET("/beds/recommendations/step-down", h.StepDown)
	readGroup.GET("/beds/recommendations/escalation", h.Escalation)
	readGroup.GET("/beds/:number", h.GetBed)
	readGroup.POST("/beds/recommend", h.Recommend)
	readGroup.GET("/patients", h.ListPatients)
	readGroup.GET("/patients/stats/dashboard", h.Dashboard)
	readGroup.GET("/patients/:id", h.GetPatient)

	// Patient records – any clinician
	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor, auth.RoleNurse))
	writeGroup.POST("/patients", h.AdmitPatient)
	writeGroup.PUT("/patients/:id", h.UpdatePatient)
	writeGroup.DELETE("/patients/:id", h.DischargePatient)

	// Placement – doctors
	placeGroup := api.Group("", auth.RequireRole(auth.RoleDoctor))
	placeGroup.POST("/beds/allocate", h.Allocate)
	placeGroup.POST("/beds/release", h.Release)
	placeGroup.POST("/beds/transfer", h.Transfer)

	// Inventory – admin only
	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.POST("/beds", h.CreateBed)
	adminGroup.PUT("/beds/:number", h.UpdateBed)
	adminGroup.PUT("/beds/:number/status", h.SetBedStatus)
	adminGroup.DELETE("/beds/:number", h.DeleteBed)
}

// HTTPError maps domain errors onto HTTP statuses.
func HTTPError(err error) error {
	var partial *PartialTransferError
	switch {
	case errors.As(err, &partial):
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrBedUnavailable), errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func bedNumberParam(c echo.Context) (int, error) {
	n, err := strconv.Atoi(c.Param("number"))
	if err != nil || n <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid bed number")
	}
	return n, nil
}

func patientIDParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Bed Handlers --

func (h *Handler) ListBeds(c echo.Context) error {
	f := BedFilter{
		RoomType: RoomType(c.QueryParam("room_type")),
		Status:   BedStatus(c.QueryParam("status")),
		Ward:     c.QueryParam("ward"),
	}
	beds, err := h.svc.ListBeds(c.Request().Context(), f)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, beds)
}

func (h *Handler) GetBed(c echo.Context) error {
	n, err := bedNumberParam(c)
	if err != nil {
		return err
	}
	bed, err := h.svc.GetBed(c.Request().Context(), n)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, bed)
}

func (h *Handler) CreateBed(c echo.Context) error {
	var b Bed
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateBed(c.Request().Context(), &b); err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) UpdateBed(c echo.Context) error {
	n, err := bedNumberParam(c)
	if err != nil {
		return err
	}
	var b Bed
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b.BedNumber = n
	if err := h.svc.UpdateBed(c.Request().Context(), &b); err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

type statusRequest struct {
	Status BedStatus `json:"status"`
}

func (h *Handler) SetBedStatus(c echo.Context) error {
	n, err := bedNumberParam(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	bed, err := h.svc.SetBedStatus(c.Request().Context(), n, req.Status)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, bed)
}

func (h *Handler) DeleteBed(c echo.Context) error {
	n, err := bedNumberParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteBed(c.Request().Context(), n); err != nil {
		return HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) BedStats(c echo.Context) error {
	stats, err := h.svc.BedStats(c.Request().Context())
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) ExportBedStats(c echo.Context) error {
	data, err := h.svc.ExportOccupancy(c.Request().Context())
	if err != nil {
		return HTTPError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="ward-occupancy.xlsx"`)
	return c.Blob(http.StatusOK, xlsxContentType, data)
}

func (h *Handler) Recommend(c echo.Context) error {
	var req RecommendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.FindOptimalBed(c.Request().Context(), req)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

type allocateRequest struct {
	BedNumber int       `json:"bed_number"`
	PatientID uuid.UUID `json:"patient_id"`
}

func (h *Handler) Allocate(c echo.Context) error {
	var req allocateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	alloc, err := h.svc.Allocate(c.Request().Context(), req.BedNumber, req.PatientID)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, alloc)
}

type releaseRequest struct {
	BedNumber int `json:"bed_number"`
}

func (h *Handler) Release(c echo.Context) error {
	var req releaseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rel, err := h.svc.Release(c.Request().Context(), req.BedNumber)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, rel)
}

type transferRequest struct {
	PatientID       uuid.UUID `json:"patient_id"`
	TargetBedNumber int       `json:"target_bed_number"`
}

func (h *Handler) Transfer(c echo.Context) error {
	var req transferRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Transfer(c.Request().Context(), req.PatientID, req.TargetBedNumber)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) StepDown(c echo.Context) error {
	out, err := h.svc.StepDownCandidates(c.Request().Context())
	if err != nil {
		return HTTPError(err)
	}
	if out == nil {
		out = []StepDownCandidate{}
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Escalation(c echo.Context) error {
	out, err := h.svc.EscalationCandidates(c.Request().Context())
	if err != nil {
		return HTTPError(err)
	}
	if out == nil {
		out = []EscalationCandidate{}
	}
	return c.JSON(http.StatusOK, out)
}

// -- Patient Handlers --

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := PatientFilter{
		Status:   Severity(c.QueryParam("status")),
		RoomType: RoomType(c.QueryParam("room_type")),
		Search:   c.QueryParam("search"),
		Active:   c.QueryParam("active") == "true",
	}
	items, total, err := h.svc.ListPatients(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := patientIDParam(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// AdmitPatient accepts a patient body; a bed_number in it is allocated as
// part of the admission.
func (h *Handler) AdmitPatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	admitted, err := h.svc.Admit(c.Request().Context(), &p, p.BedNumber)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, admitted)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := patientIDParam(c)
	if err != nil {
		return err
	}
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = id
	if err := h.svc.UpdatePatient(c.Request().Context(), &p); err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DischargePatient(c echo.Context) error {
	id, err := patientIDParam(c)
	if err != nil {
		return err
	}
	out, err := h.svc.Discharge(c.Request().Context(), id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":      fmt.Sprintf("Patient %s discharged", out.Patient.Name),
		"patient":      out.Patient,
		"released_bed": out.Released,
	})
}

func (h *Handler) Dashboard(c echo.Context) error {
	stats, err := h.svc.DashboardStats(c.Request().Context())
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

package pharmacy

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/his/his/internal/platform/auth"
	"github.com/his/his/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("pharmacist", "billing", "viewer"))
	read.GET("/pharmacy/batches", h.ListBatches)
	read.GET("/pharmacy/batches/:id", h.GetBatch)
	read.GET("/pharmacy/stock/:medicineId", h.GetStock)
	read.GET("/pharmacy/prescriptions/:id", h.GetPrescription)
	read.GET("/pharmacy/prescriptions", h.ListPrescriptions)
	read.GET("/pharmacy/prescriptions/:id/dispenses", h.ListDispenses)
	read.GET("/pharmacy/dispenses/:id", h.GetDispense)
	read.GET("/pharmacy/dispenses/number/:number", h.GetDispenseByNumber)

	write := api.Group("", auth.RequireRole("pharmacist"))
	write.POST("/pharmacy/batches", h.AddBatch)
	write.POST("/pharmacy/batches/:id/block", h.BlockBatch)
	write.POST("/pharmacy/batches/:id/recall", h.RecallBatch)
	write.POST("/pharmacy/batches/:id/reactivate", h.ReactivateBatch)
	write.POST("/pharmacy/prescriptions", h.CreatePrescription)
	write.POST("/pharmacy/prescriptions/:id/cancel", h.CancelPrescription)
	write.POST("/pharmacy/prescriptions/:id/dispense", h.Dispense)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrVersionConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrSafetyBlocked):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

func (h *Handler) AddBatch(c echo.Context) error {
	var b InventoryBatch
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.AddBatch(c.Request().Context(), &b); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBatch(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.GetBatch(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListBatches(c echo.Context) error {
	pg := pagination.FromContext(c)
	batches, total, err := h.svc.ListBatches(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(batches, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetStock(c echo.Context) error {
	medicineID, err := uuid.Parse(c.Param("medicineId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid medicine id")
	}
	qty, err := h.svc.StockForMedicine(c.Request().Context(), medicineID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"medicine_id": medicineID,
		"available":   qty,
	})
}

func (h *Handler) BlockBatch(c echo.Context) error {
	return batchStatusChange(c, h.svc.BlockBatch)
}

func (h *Handler) RecallBatch(c echo.Context) error {
	return batchStatusChange(c, h.svc.RecallBatch)
}

func (h *Handler) ReactivateBatch(c echo.Context) error {
	return batchStatusChange(c, h.svc.ReactivateBatch)
}

func batchStatusChange(c echo.Context, fn func(ctx context.Context, id uuid.UUID) (*InventoryBatch, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := fn(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) CreatePrescription(c echo.Context) error {
	var p Prescription
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreatePrescription(c.Request().Context(), &p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPrescription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPrescription(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPrescriptions(c echo.Context) error {
	patientID, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	pg := pagination.FromContext(c)
	prescriptions, total, err := h.svc.ListPrescriptionsByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(prescriptions, total, pg.Limit, pg.Offset))
}

func (h *Handler) CancelPrescription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.CancelPrescription(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Dispense(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.DispensePrescription(c.Request().Context(), id, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		if d != nil {
			// Stock moved but the billing hook failed; surface both.
			return c.JSON(http.StatusAccepted, map[string]interface{}{
				"dispense": d,
				"warning":  err.Error(),
			})
		}
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) GetDispense(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.GetDispense(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) GetDispenseByNumber(c echo.Context) error {
	d, err := h.svc.GetDispenseByNumber(c.Request().Context(), c.Param("number"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDispenses(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	dispenses, err := h.svc.ListDispensesByPrescription(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, dispenses)
}

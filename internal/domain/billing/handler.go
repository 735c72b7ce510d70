package billing

import (
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
	read := api.Group("", auth.RequireRole("billing", "cashier", "viewer"))
	read.GET("/bills", h.List)
	read.GET("/bills/draft", h.GetLatestDraft)
	read.GET("/bills/number/:number", h.GetByNumber)
	read.GET("/bills/:id", h.Get)
	read.GET("/bills/:id/payments", h.ListPayments)
	read.GET("/bills/:id/audit-trail", h.ListAuditTrail)

	write := api.Group("", auth.RequireRole("billing"))
	write.POST("/bills", h.Create)
	write.POST("/bills/:id/items", h.AddItems)
	write.PUT("/bills/:id", h.Update)
	write.POST("/bills/charges/bed/:admissionId", h.GenerateBedCharges)
	write.POST("/bills/charges/theatre/:caseId", h.GenerateTheatreCharges)
	write.POST("/bills/charges/lab/:orderId", h.GenerateLabCharges)
	write.POST("/bills/charges/pharmacy/:dispenseId", h.GeneratePharmacyCharges)
	write.POST("/bills/:id/discount-requests", h.RequestDiscount)
	write.POST("/bills/:id/recalculate", h.Recalculate)
	write.POST("/bills/:id/finalize", h.Finalize)
	write.PUT("/bills/:id/payment-responsibility", h.SetPaymentResponsibility)
	write.POST("/bills/:id/cancel", h.Cancel)

	// Discount approval is a supervisory action.
	api.POST("/bills/:id/discount-requests/decision", h.DecideDiscount, auth.RequireRole())

	cashier := api.Group("", auth.RequireRole("billing", "cashier"))
	cashier.POST("/bills/:id/payments", h.RecordPayment)
}

// httpError maps the service error taxonomy onto status codes. Anything
// outside the taxonomy is a plain validation failure.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUnauthorized):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrVersionConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

func (h *Handler) Create(c echo.Context) error {
	var b Bill
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.GenerateBill(c.Request().Context(), &b, auth.UserIDFromContext(c.Request().Context())); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.GetBill(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) GetByNumber(c echo.Context) error {
	b, err := h.svc.GetBillByNumber(c.Request().Context(), c.Param("number"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) GetLatestDraft(c echo.Context) error {
	patientID, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	b, err := h.svc.GetLatestDraftBill(c.Request().Context(), patientID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) List(c echo.Context) error {
	patientID, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	pg := pagination.FromContext(c)
	bills, total, err := h.svc.ListBillsByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(bills, total, pg.Limit, pg.Offset))
}

func (h *Handler) AddItems(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Items []Item `json:"items"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.AddItems(c.Request().Context(), id, body.Items, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var upd UpdateBillRequest
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.UpdateBill(c.Request().Context(), id, upd,
		auth.UserIDFromContext(c.Request().Context()), auth.RolesFromContext(c.Request().Context()))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) GenerateBedCharges(c echo.Context) error {
	admissionID, err := uuid.Parse(c.Param("admissionId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid admission id")
	}
	outcome, err := h.svc.GenerateBedCharges(c.Request().Context(), admissionID, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, outcome)
}

func (h *Handler) GenerateTheatreCharges(c echo.Context) error {
	caseID, err := uuid.Parse(c.Param("caseId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}
	outcome, err := h.svc.GenerateTheatreCharges(c.Request().Context(), caseID, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, outcome)
}

func (h *Handler) GenerateLabCharges(c echo.Context) error {
	orderID, err := uuid.Parse(c.Param("orderId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}
	outcome, err := h.svc.GenerateLabCharges(c.Request().Context(), orderID, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, outcome)
}

func (h *Handler) GeneratePharmacyCharges(c echo.Context) error {
	dispenseID, err := uuid.Parse(c.Param("dispenseId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid dispense id")
	}
	outcome, err := h.svc.GeneratePharmacyCharges(c.Request().Context(), dispenseID, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, outcome)
}

func (h *Handler) RequestDiscount(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Amount float64 `json:"amount"`
		Reason string  `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.RequestDiscount(c.Request().Context(), id, body.Amount, body.Reason, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) DecideDiscount(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Approve         bool   `json:"approve"`
		RejectionReason string `json:"rejection_reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.ApproveDiscount(c.Request().Context(), id,
		auth.UserIDFromContext(c.Request().Context()), body.Approve, body.RejectionReason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) Recalculate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.RecalculateTotals(c.Request().Context(), id, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) Finalize(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.FinalizeBill(c.Request().Context(), id, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) SetPaymentResponsibility(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var resp PaymentResponsibility
	if err := c.Bind(&resp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.SetPaymentResponsibility(c.Request().Context(), id, resp, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.CancelBill(c.Request().Context(), id, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) RecordPayment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var p Payment
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ReceivedBy = auth.UserIDFromContext(c.Request().Context())
	b, err := h.svc.RecordPayment(c.Request().Context(), id, &p)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListPayments(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	payments, err := h.svc.ListPayments(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, payments)
}

func (h *Handler) ListAuditTrail(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	entries, total, err := h.svc.ListAuditTrail(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg.Limit, pg.Offset))
}

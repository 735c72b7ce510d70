package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/his/his/internal/platform/auth"
)

func setupServer(t *testing.T) (*echo.Echo, *fixture) {
	t.Helper()
	f := newFixture()
	e := echo.New()
	api := e.Group("/api/v1", auth.DevAuthMiddleware())
	NewHandler(f.svc).RegisterRoutes(api)
	return e, f
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateBillEndpoint(t *testing.T) {
	e, _ := setupServer(t)

	body := fmt.Sprintf(`{"patient_id":%q,"items":[{"item_type":"consultation","description":"Consultation","quantity":1,"rate":500,"discount_percent":10,"tax_percent":18}]}`, uuid.New())
	rec := doJSON(e, http.MethodPost, "/api/v1/bills", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var b Bill
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(b.BillNumber, "BIL") || b.Status != StatusDraft {
		t.Errorf("bill = %+v", b)
	}
	if !almostEqual(b.GrandTotal, 531) {
		t.Errorf("grand total = %v, want 531", b.GrandTotal)
	}
}

func TestGetBillEndpointErrors(t *testing.T) {
	e, _ := setupServer(t)

	rec := doJSON(e, http.MethodGet, "/api/v1/bills/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid id: status = %d", rec.Code)
	}

	rec = doJSON(e, http.MethodGet, "/api/v1/bills/"+uuid.NewString(), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing bill: status = %d", rec.Code)
	}
}

func TestFinalizeEndpointConflictOnSecondCall(t *testing.T) {
	e, f := setupServer(t)
	b := f.newDraftBill(t, consultItem())

	rec := doJSON(e, http.MethodPost, "/api/v1/bills/"+b.ID.String()+"/finalize", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("first finalize: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(e, http.MethodPost, "/api/v1/bills/"+b.ID.String()+"/finalize", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("second finalize: status = %d", rec.Code)
	}
}

func TestRecordPaymentEndpoint(t *testing.T) {
	e, f := setupServer(t)
	b := f.newDraftBill(t, Item{ItemType: "procedure", Description: "Dressing", Quantity: 1, Rate: 1000})

	rec := doJSON(e, http.MethodPost, "/api/v1/bills/"+b.ID.String()+"/payments",
		`{"amount":400,"mode":"cash"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got Bill
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.PaymentStatus != PaymentPartial || !almostEqual(got.BalanceAmount, 600) {
		t.Errorf("bill = %+v", got)
	}

	// Overpayment is a business-rule violation, not a conflict.
	rec = doJSON(e, http.MethodPost, "/api/v1/bills/"+b.ID.String()+"/payments",
		`{"amount":700,"mode":"cash"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("overpayment: status = %d", rec.Code)
	}
}

func TestDiscountEndpoints(t *testing.T) {
	e, f := setupServer(t)
	b := f.newDraftBill(t, Item{ItemType: "procedure", Description: "Dressing", Quantity: 1, Rate: 1000})

	rec := doJSON(e, http.MethodPost, "/api/v1/bills/"+b.ID.String()+"/discount-requests",
		`{"amount":100,"reason":"staff courtesy"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("request: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(e, http.MethodPost, "/api/v1/bills/"+b.ID.String()+"/discount-requests/decision",
		`{"approve":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("decision: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got Bill
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Discount == nil || got.Discount.Status != DiscountApproved {
		t.Errorf("discount = %+v", got.Discount)
	}
}

func TestChargeEndpointSkipReason(t *testing.T) {
	e, f := setupServer(t)
	patientID := uuid.New()
	f.svc.SetTariffFinder(&stubTariffs{rates: map[string]float64{}})
	f.svc.SetChargeSources(&stubBeds{info: &BedChargeInfo{PatientID: patientID, Ward: "ICU", Days: 2}}, nil, nil, nil)

	bill := &Bill{PatientID: patientID}
	if err := f.svc.GenerateBill(context.Background(), bill, "user-1"); err != nil {
		t.Fatalf("GenerateBill: %v", err)
	}

	rec := doJSON(e, http.MethodPost, "/api/v1/bills/charges/bed/"+uuid.NewString(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var outcome ChargeOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if outcome.Charged || !strings.Contains(outcome.SkipReason, "no active tariff") {
		t.Errorf("outcome = %+v", outcome)
	}
}

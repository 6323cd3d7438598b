package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/laundromat-system/internal/model"
	"github.com/mmeshcher/laundromat-system/internal/repository"
	"github.com/mmeshcher/laundromat-system/internal/validation"
)

type stubService struct {
	createCustomerID  int64
	createCustomerErr error

	customer    *model.Customer
	customerErr error

	createAffiliateID int64

	rates     model.Rates
	ratesErr  error
	updateErr error

	createOrderResp *model.Order
	createOrderErr  error

	orderResp *model.Order
	orderErr  error

	ordersResp []model.Order
	ordersErr  error

	bagsResp []model.Bag
	bagsErr  error

	recordResp *model.Order
	recordErr  error
}

func (s *stubService) CreateCustomer(ctx context.Context, name string) (int64, error) {
	return s.createCustomerID, s.createCustomerErr
}

func (s *stubService) GetCustomer(ctx context.Context, id int64) (*model.Customer, error) {
	return s.customer, s.customerErr
}

func (s *stubService) CreateAffiliate(ctx context.Context, name string) (int64, error) {
	return s.createAffiliateID, nil
}

func (s *stubService) GetRates(ctx context.Context) (model.Rates, error) {
	return s.rates, s.ratesErr
}

func (s *stubService) UpdateRates(ctx context.Context, rates model.Rates) error {
	return s.updateErr
}

func (s *stubService) CreateOrder(ctx context.Context, customerID int64, affiliateID *int64, estimatedWeight decimal.Decimal, numberOfBags int, addOnKeys []string) (*model.Order, error) {
	return s.createOrderResp, s.createOrderErr
}

func (s *stubService) GetOrder(ctx context.Context, number string) (*model.Order, error) {
	return s.orderResp, s.orderErr
}

func (s *stubService) GetOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error) {
	return s.ordersResp, s.ordersErr
}

func (s *stubService) GetOrderBags(ctx context.Context, number string) ([]model.Bag, error) {
	return s.bagsResp, s.bagsErr
}

func (s *stubService) RecordBagWeight(ctx context.Context, number, bagID string, weight decimal.Decimal) (*model.Order, error) {
	return s.recordResp, s.recordErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	return NewHandler(svc, logger)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreateOrder_Success(t *testing.T) {
	svc := &stubService{
		createOrderResp: &model.Order{
			Number:           "01ARZ3NDEKTSV4RRFFQ69G5FAV",
			CustomerID:       1,
			EstimatedWeight:  d("25"),
			NumberOfBags:     2,
			BaseRate:         d("1.25"),
			Fee:              model.FeeBreakdown{NumberOfBags: 2, MinimumFee: d("25"), PerBagFee: d("5"), TotalFee: d("25"), MinimumApplied: true},
			WDFCreditApplied: d("6.25"),
			EstimatedTotal:   d("50"),
			Status:           model.OrderStatusPending,
		},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(createOrderRequest{
		CustomerID:      1,
		EstimatedWeight: 25,
		NumberOfBags:    2,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.CreateOrder(rec, req)

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp orderResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Number != "01ARZ3NDEKTSV4RRFFQ69G5FAV" {
		t.Fatalf("number = %q", resp.Number)
	}
	if !resp.WDFCreditApplied.Equal(d("6.25")) {
		t.Fatalf("wdf_credit_applied = %s, want 6.25", resp.WDFCreditApplied)
	}
	if !resp.EstimatedTotal.Equal(d("50")) {
		t.Fatalf("estimated_total = %s, want 50", resp.EstimatedTotal)
	}
}

func TestCreateOrder_UnknownAddOn(t *testing.T) {
	svc := &stubService{
		createOrderErr: fmt.Errorf("%w: %q", validation.ErrUnknownAddOn, "dryCleaning"),
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(createOrderRequest{
		CustomerID:      1,
		EstimatedWeight: 25,
		NumberOfBags:    2,
		AddOns:          []string{"dryCleaning"},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.CreateOrder(rec, req)

	if rec.Result().StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestCreateOrder_CustomerNotFound(t *testing.T) {
	svc := &stubService{
		createOrderErr: repository.ErrCustomerNotFound,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(createOrderRequest{CustomerID: 99, EstimatedWeight: 25, NumberOfBags: 2})

	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.CreateOrder(rec, req)

	if rec.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusNotFound)
	}
}

func TestRecordBagWeight_DuplicateBag(t *testing.T) {
	svc := &stubService{
		recordErr: fmt.Errorf("%w: %s", repository.ErrDuplicateBag, "bag-1"),
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(recordBagRequest{BagID: "bag-1", Weight: 15})

	req := httptest.NewRequest(http.MethodPost, "/api/orders/01ARZ/bags", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.RecordBagWeight(rec, req)

	if rec.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusConflict)
	}
}

func TestRecordBagWeight_CompletionIncludesCredit(t *testing.T) {
	diff := d("5")
	credit := d("6.25")
	actualTotal := d("68.75")

	svc := &stubService{
		recordResp: &model.Order{
			Number:             "01ARZ3NDEKTSV4RRFFQ69G5FAV",
			Status:             model.OrderStatusFullyWeighed,
			BagsWeighed:        2,
			NumberOfBags:       2,
			ActualWeight:       d("35"),
			WeightDifference:   &diff,
			WDFCreditGenerated: &credit,
			ActualTotal:        &actualTotal,
		},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(recordBagRequest{BagID: "bag-2", Weight: 15})

	req := httptest.NewRequest(http.MethodPost, "/api/orders/01ARZ/bags", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.RecordBagWeight(rec, req)

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp recordBagResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != string(model.OrderStatusFullyWeighed) {
		t.Fatalf("status = %q, want FULLY_WEIGHED", resp.Status)
	}
	if resp.WDFCreditGenerated == nil || !resp.WDFCreditGenerated.Equal(credit) {
		t.Fatalf("wdf_credit_generated = %v, want 6.25", resp.WDFCreditGenerated)
	}
}

func TestRecordBagWeight_PartialHasNoCredit(t *testing.T) {
	svc := &stubService{
		recordResp: &model.Order{
			Number:       "01ARZ3NDEKTSV4RRFFQ69G5FAV",
			Status:       model.OrderStatusPartiallyWeighed,
			BagsWeighed:  1,
			NumberOfBags: 2,
			ActualWeight: d("20"),
		},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(recordBagRequest{BagID: "bag-1", Weight: 20})

	req := httptest.NewRequest(http.MethodPost, "/api/orders/01ARZ/bags", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.RecordBagWeight(rec, req)

	res := rec.Result()
	defer res.Body.Close()

	var resp recordBagResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.WDFCreditGenerated != nil {
		t.Fatalf("partial weighing must not expose a credit, got %s", resp.WDFCreditGenerated)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	svc := &stubService{orderErr: repository.ErrOrderNotFound}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/unknown", nil)
	rec := httptest.NewRecorder()

	h.GetOrder(rec, req)

	if rec.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusNotFound)
	}
}

func TestGetCustomerOrders_NoContent(t *testing.T) {
	svc := &stubService{ordersResp: []model.Order{}}
	h := newTestHandler(t, svc)

	r := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/customers/1/orders", nil)
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusNoContent)
	}
}

func TestGetRates_JSONResponse(t *testing.T) {
	svc := &stubService{rates: model.DefaultRates()}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/rates", nil)
	rec := httptest.NewRecorder()

	h.GetRates(rec, req)

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var resp ratesPayload
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.BaseRate.Equal(d("1.25")) {
		t.Fatalf("base_rate = %s, want 1.25", resp.BaseRate)
	}
}

func TestGetCustomerCredit_ViaRouter(t *testing.T) {
	svc := &stubService{
		customer: &model.Customer{
			ID:                 1,
			Name:               "customer",
			WDFCredit:          d("6.25"),
			WDFCreditFromOrder: "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		},
	}
	h := newTestHandler(t, svc)

	r := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/customers/1/credit", nil)
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp creditResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.WDFCredit.Equal(d("6.25")) {
		t.Fatalf("wdf_credit = %s, want 6.25", resp.WDFCredit)
	}
	if resp.WDFCreditFromOrder != "01ARZ3NDEKTSV4RRFFQ69G5FAV" {
		t.Fatalf("wdf_credit_from_order = %q", resp.WDFCreditFromOrder)
	}
}

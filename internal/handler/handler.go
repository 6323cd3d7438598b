// Package handler содержит HTTP-обработчики API сервиса прачечной.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/laundromat-system/internal/model"
	"github.com/mmeshcher/laundromat-system/internal/repository"
	"github.com/mmeshcher/laundromat-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateCustomer(ctx context.Context, name string) (int64, error)
	GetCustomer(ctx context.Context, id int64) (*model.Customer, error)
	CreateAffiliate(ctx context.Context, name string) (int64, error)
	GetRates(ctx context.Context) (model.Rates, error)
	UpdateRates(ctx context.Context, rates model.Rates) error
	CreateOrder(ctx context.Context, customerID int64, affiliateID *int64, estimatedWeight decimal.Decimal, numberOfBags int, addOnKeys []string) (*model.Order, error)
	GetOrder(ctx context.Context, number string) (*model.Order, error)
	GetOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error)
	GetOrderBags(ctx context.Context, number string) ([]model.Bag, error)
	RecordBagWeight(ctx context.Context, number, bagID string, weight decimal.Decimal) (*model.Order, error)
}

// Handler реализует HTTP-обработчики API сервиса прачечной.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
	}
}

type nameRequest struct {
	Name string `json:"name"`
}

type createdResponse struct {
	ID int64 `json:"id"`
}

// CreateCustomer обрабатывает создание нового клиента.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateCustomer(r.Context(), req.Name)
	if err != nil {
		h.writeError(w, err, "create customer")
		return
	}

	h.writeJSON(w, http.StatusOK, createdResponse{ID: id})
}

// CreateAffiliate обрабатывает создание нового партнёра.
func (h *Handler) CreateAffiliate(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateAffiliate(r.Context(), req.Name)
	if err != nil {
		h.writeError(w, err, "create affiliate")
		return
	}

	h.writeJSON(w, http.StatusOK, createdResponse{ID: id})
}

type creditResponse struct {
	WDFCredit          decimal.Decimal `json:"wdf_credit"`
	WDFCreditFromOrder string          `json:"wdf_credit_from_order,omitempty"`
	WDFCreditUpdatedAt string          `json:"wdf_credit_updated_at,omitempty"`
}

// GetCustomerCredit возвращает кредитный баланс WDF клиента для личного кабинета.
func (h *Handler) GetCustomerCredit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "customerID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	customer, err := h.service.GetCustomer(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get customer credit")
		return
	}

	resp := creditResponse{
		WDFCredit:          customer.WDFCredit,
		WDFCreditFromOrder: customer.WDFCreditFromOrder,
	}
	if customer.WDFCreditUpdatedAt != nil {
		resp.WDFCreditUpdatedAt = customer.WDFCreditUpdatedAt.Format(time.RFC3339)
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type createOrderRequest struct {
	CustomerID      int64    `json:"customer_id"`
	AffiliateID     *int64   `json:"affiliate_id,omitempty"`
	EstimatedWeight float64  `json:"estimated_weight"`
	NumberOfBags    int      `json:"number_of_bags"`
	AddOns          []string `json:"add_ons,omitempty"`
}

type feeResponse struct {
	NumberOfBags   int             `json:"number_of_bags"`
	MinimumFee     decimal.Decimal `json:"minimum_fee"`
	PerBagFee      decimal.Decimal `json:"per_bag_fee"`
	TotalFee       decimal.Decimal `json:"total_fee"`
	MinimumApplied bool            `json:"minimum_applied"`
}

type orderResponse struct {
	Number          string          `json:"number"`
	CustomerID      int64           `json:"customer_id"`
	AffiliateID     *int64          `json:"affiliate_id,omitempty"`
	Status          string          `json:"status"`
	EstimatedWeight decimal.Decimal `json:"estimated_weight"`
	NumberOfBags    int             `json:"number_of_bags"`
	AddOns          []string        `json:"add_ons,omitempty"`

	BaseRate         decimal.Decimal `json:"base_rate"`
	Fee              feeResponse     `json:"fee"`
	AddOnTotal       decimal.Decimal `json:"addon_total"`
	WDFCreditApplied decimal.Decimal `json:"wdf_credit_applied"`
	EstimatedTotal   decimal.Decimal `json:"estimated_total"`

	BagsWeighed  int             `json:"bags_weighed"`
	ActualWeight decimal.Decimal `json:"actual_weight"`

	WeightDifference    *decimal.Decimal `json:"weight_difference,omitempty"`
	WDFCreditGenerated  *decimal.Decimal `json:"wdf_credit_generated,omitempty"`
	ActualAddOnTotal    *decimal.Decimal `json:"actual_addon_total,omitempty"`
	ActualTotal         *decimal.Decimal `json:"actual_total,omitempty"`
	AffiliateCommission *decimal.Decimal `json:"affiliate_commission,omitempty"`

	CreatedAt string `json:"created_at"`
	WeighedAt string `json:"weighed_at,omitempty"`
}

func toOrderResponse(o *model.Order) orderResponse {
	resp := orderResponse{
		Number:          o.Number,
		CustomerID:      o.CustomerID,
		AffiliateID:     o.AffiliateID,
		Status:          string(o.Status),
		EstimatedWeight: o.EstimatedWeight,
		NumberOfBags:    o.NumberOfBags,
		BaseRate:        o.BaseRate,
		Fee: feeResponse{
			NumberOfBags:   o.Fee.NumberOfBags,
			MinimumFee:     o.Fee.MinimumFee,
			PerBagFee:      o.Fee.PerBagFee,
			TotalFee:       o.Fee.TotalFee,
			MinimumApplied: o.Fee.MinimumApplied,
		},
		AddOnTotal:          o.AddOnTotal,
		WDFCreditApplied:    o.WDFCreditApplied,
		EstimatedTotal:      o.EstimatedTotal,
		BagsWeighed:         o.BagsWeighed,
		ActualWeight:        o.ActualWeight,
		WeightDifference:    o.WeightDifference,
		WDFCreditGenerated:  o.WDFCreditGenerated,
		ActualAddOnTotal:    o.ActualAddOnTotal,
		ActualTotal:         o.ActualTotal,
		AffiliateCommission: o.AffiliateCommission,
		CreatedAt:           o.CreatedAt.Format(time.RFC3339),
	}

	if o.AddOns.PremiumDetergent {
		resp.AddOns = append(resp.AddOns, validation.AddOnPremiumDetergent)
	}
	if o.AddOns.FabricSoftener {
		resp.AddOns = append(resp.AddOns, validation.AddOnFabricSoftener)
	}
	if o.AddOns.StainRemover {
		resp.AddOns = append(resp.AddOns, validation.AddOnStainRemover)
	}

	if o.WeighedAt != nil {
		resp.WeighedAt = o.WeighedAt.Format(time.RFC3339)
	}

	return resp
}

// CreateOrder обрабатывает создание заказа на стирку.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.CreateOrder(r.Context(), req.CustomerID, req.AffiliateID,
		decimal.NewFromFloat(req.EstimatedWeight), req.NumberOfBags, req.AddOns)
	if err != nil {
		h.writeError(w, err, "create order")
		return
	}

	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// GetOrder возвращает заказ по номеру.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	order, err := h.service.GetOrder(r.Context(), number)
	if err != nil {
		h.writeError(w, err, "get order")
		return
	}

	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// GetCustomerOrders возвращает список заказов клиента.
func (h *Handler) GetCustomerOrders(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "customerID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	orders, err := h.service.GetOrdersByCustomer(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get customer orders")
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type bagResponse struct {
	BagID      string          `json:"bag_id"`
	Weight     decimal.Decimal `json:"weight"`
	RecordedAt string          `json:"recorded_at"`
}

// GetOrderBags возвращает взвешенные мешки заказа.
func (h *Handler) GetOrderBags(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	bags, err := h.service.GetOrderBags(r.Context(), number)
	if err != nil {
		h.writeError(w, err, "get order bags")
		return
	}

	if len(bags) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]bagResponse, 0, len(bags))
	for _, b := range bags {
		resp = append(resp, bagResponse{
			BagID:      b.BagID,
			Weight:     b.Weight,
			RecordedAt: b.RecordedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type recordBagRequest struct {
	BagID  string  `json:"bag_id"`
	Weight float64 `json:"weight"`
}

type recordBagResponse struct {
	Number             string           `json:"number"`
	Status             string           `json:"status"`
	BagsWeighed        int              `json:"bags_weighed"`
	NumberOfBags       int              `json:"number_of_bags"`
	ActualWeight       decimal.Decimal  `json:"actual_weight"`
	WeightDifference   *decimal.Decimal `json:"weight_difference,omitempty"`
	WDFCreditGenerated *decimal.Decimal `json:"wdf_credit_generated,omitempty"`
	ActualTotal        *decimal.Decimal `json:"actual_total,omitempty"`
}

// RecordBagWeight фиксирует вес одного мешка заказа; при взвешивании
// последнего мешка ответ содержит результаты сверки.
func (h *Handler) RecordBagWeight(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	var req recordBagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.RecordBagWeight(r.Context(), number, req.BagID, decimal.NewFromFloat(req.Weight))
	if err != nil {
		h.writeError(w, err, "record bag weight")
		return
	}

	h.writeJSON(w, http.StatusOK, recordBagResponse{
		Number:             order.Number,
		Status:             string(order.Status),
		BagsWeighed:        order.BagsWeighed,
		NumberOfBags:       order.NumberOfBags,
		ActualWeight:       order.ActualWeight,
		WeightDifference:   order.WeightDifference,
		WDFCreditGenerated: order.WDFCreditGenerated,
		ActualTotal:        order.ActualTotal,
	})
}

type ratesPayload struct {
	BaseRate       decimal.Decimal `json:"base_rate"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	AddOnRate      decimal.Decimal `json:"addon_rate"`
	MinimumFee     decimal.Decimal `json:"minimum_fee"`
	PerBagFee      decimal.Decimal `json:"per_bag_fee"`
}

// GetRates возвращает текущие тарифы сервиса.
func (h *Handler) GetRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.service.GetRates(r.Context())
	if err != nil {
		h.writeError(w, err, "get rates")
		return
	}

	h.writeJSON(w, http.StatusOK, ratesPayload{
		BaseRate:       rates.BaseRate,
		CommissionRate: rates.CommissionRate,
		AddOnRate:      rates.AddOnRate,
		MinimumFee:     rates.MinimumFee,
		PerBagFee:      rates.PerBagFee,
	})
}

// UpdateRates сохраняет тарифы, заданные администратором.
func (h *Handler) UpdateRates(w http.ResponseWriter, r *http.Request) {
	var req ratesPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.service.UpdateRates(r.Context(), model.Rates{
		BaseRate:       req.BaseRate,
		CommissionRate: req.CommissionRate,
		AddOnRate:      req.AddOnRate,
		MinimumFee:     req.MinimumFee,
		PerBagFee:      req.PerBagFee,
	})
	if err != nil {
		h.writeError(w, err, "update rates")
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, validation.ErrUnknownAddOn):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, validation.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, repository.ErrCustomerNotFound),
		errors.Is(err, repository.ErrAffiliateNotFound),
		errors.Is(err, repository.ErrOrderNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, repository.ErrDuplicateBag):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error(op, zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// Package service реализует бизнес-логику сервиса прачечной.
package service

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/laundromat-system/internal/model"
	"github.com/mmeshcher/laundromat-system/internal/repository"
	"github.com/mmeshcher/laundromat-system/internal/validation"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateCustomer(ctx context.Context, name string) (int64, error)
	GetCustomer(ctx context.Context, id int64) (*model.Customer, error)
	CreateAffiliate(ctx context.Context, name string) (int64, error)
	GetRates(ctx context.Context) (model.Rates, error)
	UpdateRates(ctx context.Context, rates model.Rates) error
	CreateOrder(ctx context.Context, draft repository.OrderDraft) (*model.Order, error)
	GetOrder(ctx context.Context, number string) (*model.Order, error)
	GetOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error)
	GetOrderBags(ctx context.Context, number string) ([]model.Bag, error)
	RecordBagWeight(ctx context.Context, number, bagID string, weight decimal.Decimal) (*model.Order, error)
}

// Service содержит бизнес-логику сервиса прачечной.
type Service struct {
	repo Repository
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// CreateCustomer создаёт нового клиента.
func (s *Service) CreateCustomer(ctx context.Context, name string) (int64, error) {
	if err := validation.ValidateName(name); err != nil {
		return 0, err
	}
	return s.repo.CreateCustomer(ctx, name)
}

// GetCustomer возвращает клиента вместе с его кредитным балансом WDF.
func (s *Service) GetCustomer(ctx context.Context, id int64) (*model.Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

// CreateAffiliate создаёт нового партнёра.
func (s *Service) CreateAffiliate(ctx context.Context, name string) (int64, error) {
	if err := validation.ValidateName(name); err != nil {
		return 0, err
	}
	return s.repo.CreateAffiliate(ctx, name)
}

// GetRates возвращает текущие тарифы сервиса.
func (s *Service) GetRates(ctx context.Context) (model.Rates, error) {
	return s.repo.GetRates(ctx)
}

// UpdateRates сохраняет тарифы, заданные администратором.
func (s *Service) UpdateRates(ctx context.Context, rates model.Rates) error {
	if err := validation.ValidateRates(rates); err != nil {
		return err
	}
	return s.repo.UpdateRates(ctx, rates)
}

// CreateOrder создаёт заказ: проверяет входные данные, фиксирует снимок
// текущих тарифов и передаёт черновик репозиторию. Проверка выполняется до
// любых расчётов, при ошибке заказ не сохраняется.
func (s *Service) CreateOrder(ctx context.Context, customerID int64, affiliateID *int64, estimatedWeight decimal.Decimal, numberOfBags int, addOnKeys []string) (*model.Order, error) {
	if err := validation.ValidateNewOrder(estimatedWeight, numberOfBags); err != nil {
		return nil, err
	}

	addOns, err := validation.ParseAddOns(addOnKeys)
	if err != nil {
		return nil, err
	}

	rates, err := s.repo.GetRates(ctx)
	if err != nil {
		return nil, err
	}

	draft := repository.OrderDraft{
		Number:          ulid.Make().String(),
		CustomerID:      customerID,
		AffiliateID:     affiliateID,
		EstimatedWeight: estimatedWeight,
		NumberOfBags:    numberOfBags,
		AddOns:          addOns,
		Rates:           rates,
	}

	return s.repo.CreateOrder(ctx, draft)
}

// GetOrder возвращает заказ по номеру.
func (s *Service) GetOrder(ctx context.Context, number string) (*model.Order, error) {
	return s.repo.GetOrder(ctx, number)
}

// GetOrdersByCustomer возвращает список заказов клиента.
func (s *Service) GetOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error) {
	return s.repo.GetOrdersByCustomer(ctx, customerID)
}

// GetOrderBags возвращает взвешенные мешки заказа.
func (s *Service) GetOrderBags(ctx context.Context, number string) ([]model.Bag, error) {
	return s.repo.GetOrderBags(ctx, number)
}

// RecordBagWeight фиксирует вес одного мешка заказа и возвращает состояние
// заказа после приращения; при взвешивании последнего мешка заказ уже
// содержит результаты сверки.
func (s *Service) RecordBagWeight(ctx context.Context, number, bagID string, weight decimal.Decimal) (*model.Order, error) {
	if err := validation.ValidateBagWeight(bagID, weight); err != nil {
		return nil, err
	}
	return s.repo.RecordBagWeight(ctx, number, bagID, weight)
}

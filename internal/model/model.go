// Package model содержит доменные сущности сервиса прачечной.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer представляет клиента прачечной вместе с его кредитным балансом WDF.
// Баланс хранится в одном слоте: положительное значение — долг сервиса перед
// клиентом, отрицательное — долг клиента, ноль — баланса нет.
type Customer struct {
	ID                 int64
	Name               string
	WDFCredit          decimal.Decimal
	WDFCreditFromOrder string
	WDFCreditUpdatedAt *time.Time
	CreatedAt          time.Time
}

// Affiliate представляет партнёра, приводящего заказы и получающего комиссию.
type Affiliate struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// OrderStatus описывает стадию взвешивания заказа.
type OrderStatus string

const (
	// OrderStatusPending — ни один мешок ещё не взвешен.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusPartiallyWeighed — взвешена часть мешков.
	OrderStatusPartiallyWeighed OrderStatus = "PARTIALLY_WEIGHED"
	// OrderStatusFullyWeighed — взвешены все мешки, сверка веса завершена.
	OrderStatusFullyWeighed OrderStatus = "FULLY_WEIGHED"
)

// AddOns описывает выбранные дополнительные услуги заказа.
type AddOns struct {
	PremiumDetergent bool
	FabricSoftener   bool
	StainRemover     bool
}

// Count возвращает количество выбранных дополнительных услуг.
func (a AddOns) Count() int {
	n := 0
	if a.PremiumDetergent {
		n++
	}
	if a.FabricSoftener {
		n++
	}
	if a.StainRemover {
		n++
	}
	return n
}

// Rates содержит текущие тарифы сервиса, редактируемые администратором.
type Rates struct {
	BaseRate       decimal.Decimal
	CommissionRate decimal.Decimal
	AddOnRate      decimal.Decimal
	MinimumFee     decimal.Decimal
	PerBagFee      decimal.Decimal
	UpdatedAt      time.Time
}

// DefaultRates возвращает тарифы, применяемые при отсутствии сохранённой
// конфигурации. Отсутствие конфигурации не является ошибкой.
func DefaultRates() Rates {
	return Rates{
		BaseRate:       decimal.NewFromFloat(1.25),
		CommissionRate: decimal.NewFromFloat(0.10),
		AddOnRate:      decimal.NewFromFloat(0.10),
		MinimumFee:     decimal.NewFromInt(25),
		PerBagFee:      decimal.NewFromInt(5),
	}
}

// FeeBreakdown описывает расчёт платы за доставку по числу мешков.
type FeeBreakdown struct {
	NumberOfBags   int
	MinimumFee     decimal.Decimal
	PerBagFee      decimal.Decimal
	TotalFee       decimal.Decimal
	MinimumApplied bool
}

// Order описывает заказ на стирку: оценочные данные на момент создания,
// замороженные тарифы и состояние сверки фактического веса.
// EstimatedTotal и ActualTotal всегда пересчитываются из компонентов,
// WDFCreditApplied фиксируется при создании и больше не меняется.
type Order struct {
	Number          string
	CustomerID      int64
	AffiliateID     *int64
	EstimatedWeight decimal.Decimal
	NumberOfBags    int
	AddOns          AddOns

	// Тарифы, зафиксированные при создании заказа. Последующие изменения
	// конфигурации на исторические заказы не влияют.
	BaseRate       decimal.Decimal
	AddOnRate      decimal.Decimal
	CommissionRate decimal.Decimal

	Fee              FeeBreakdown
	AddOnTotal       decimal.Decimal
	WDFCreditApplied decimal.Decimal
	EstimatedTotal   decimal.Decimal

	Status       OrderStatus
	BagsWeighed  int
	ActualWeight decimal.Decimal

	// Поля сверки, заполняемые один раз при взвешивании последнего мешка.
	WeightDifference    *decimal.Decimal
	WDFCreditGenerated  *decimal.Decimal
	ActualAddOnTotal    *decimal.Decimal
	ActualTotal         *decimal.Decimal
	AffiliateCommission *decimal.Decimal

	CreatedAt time.Time
	WeighedAt *time.Time
}

// Bag описывает один взвешенный мешок заказа.
type Bag struct {
	BagID      string
	Weight     decimal.Decimal
	RecordedAt time.Time
}

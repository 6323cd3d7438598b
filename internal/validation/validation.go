// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/laundromat-system/internal/model"
)

// ErrInvalidInput возвращается при некорректных или выходящих за допустимые
// границы входных данных.
var ErrInvalidInput = errors.New("invalid input")

// ErrUnknownAddOn возвращается при неизвестном ключе дополнительной услуги.
var ErrUnknownAddOn = errors.New("unknown add-on")

// Ключи дополнительных услуг, принимаемые API.
const (
	AddOnPremiumDetergent = "premiumDetergent"
	AddOnFabricSoftener   = "fabricSoftener"
	AddOnStainRemover     = "stainRemover"
)

// ParseAddOns преобразует список ключей дополнительных услуг в набор флагов.
// Повторение ключа не является ошибкой, неизвестный ключ — является.
func ParseAddOns(keys []string) (model.AddOns, error) {
	var addOns model.AddOns
	for _, key := range keys {
		switch key {
		case AddOnPremiumDetergent:
			addOns.PremiumDetergent = true
		case AddOnFabricSoftener:
			addOns.FabricSoftener = true
		case AddOnStainRemover:
			addOns.StainRemover = true
		default:
			return model.AddOns{}, fmt.Errorf("%w: %q", ErrUnknownAddOn, key)
		}
	}
	return addOns, nil
}

// ValidateName проверяет имя клиента или партнёра.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}
	return nil
}

// ValidateNewOrder проверяет оценочные параметры создаваемого заказа.
func ValidateNewOrder(estimatedWeight decimal.Decimal, numberOfBags int) error {
	if !estimatedWeight.IsPositive() {
		return fmt.Errorf("%w: estimated weight must be positive", ErrInvalidInput)
	}
	if numberOfBags < 1 {
		return fmt.Errorf("%w: order requires at least one bag", ErrInvalidInput)
	}
	return nil
}

// ValidateBagWeight проверяет параметры взвешивания одного мешка.
func ValidateBagWeight(bagID string, weight decimal.Decimal) error {
	if bagID == "" {
		return fmt.Errorf("%w: bag id must not be empty", ErrInvalidInput)
	}
	if !weight.IsPositive() {
		return fmt.Errorf("%w: bag weight must be positive", ErrInvalidInput)
	}
	return nil
}

// ValidateRates проверяет тарифы, задаваемые администратором.
func ValidateRates(r model.Rates) error {
	if !r.BaseRate.IsPositive() {
		return fmt.Errorf("%w: base rate must be positive", ErrInvalidInput)
	}
	if r.CommissionRate.IsNegative() {
		return fmt.Errorf("%w: commission rate must not be negative", ErrInvalidInput)
	}
	if r.AddOnRate.IsNegative() {
		return fmt.Errorf("%w: add-on rate must not be negative", ErrInvalidInput)
	}
	if r.MinimumFee.IsNegative() {
		return fmt.Errorf("%w: minimum fee must not be negative", ErrInvalidInput)
	}
	if r.PerBagFee.IsNegative() {
		return fmt.Errorf("%w: per-bag fee must not be negative", ErrInvalidInput)
	}
	return nil
}

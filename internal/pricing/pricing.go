// Package pricing содержит чистые функции расчёта стоимости заказа.
//
// Все денежные значения округляются до двух знаков только на денежном шаге
// расчёта; промежуточные весовые величины не округляются.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/laundromat-system/internal/model"
)

// Round2 округляет денежное значение до двух знаков после запятой.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// DeliveryFee рассчитывает плату за доставку: большее из минимальной платы
// и платы за каждый мешок.
func DeliveryFee(numberOfBags int, minimumFee, perBagFee decimal.Decimal) model.FeeBreakdown {
	perBags := perBagFee.Mul(decimal.NewFromInt(int64(numberOfBags)))

	total := perBags
	minimumApplied := minimumFee.GreaterThanOrEqual(perBags)
	if minimumApplied {
		total = minimumFee
	}

	return model.FeeBreakdown{
		NumberOfBags:   numberOfBags,
		MinimumFee:     minimumFee,
		PerBagFee:      perBagFee,
		TotalFee:       total,
		MinimumApplied: minimumApplied,
	}
}

// AddOnTotal рассчитывает надбавку за дополнительные услуги: количество
// выбранных услуг, умноженное на вес и тариф за фунт.
// Надбавка не влияет ни на плату за доставку, ни на комиссию партнёра.
func AddOnTotal(addOns model.AddOns, weight, unitRate decimal.Decimal) decimal.Decimal {
	count := decimal.NewFromInt(int64(addOns.Count()))
	return Round2(count.Mul(weight).Mul(unitRate))
}

// Total рассчитывает итоговую сумму заказа для заданного веса:
// вес по базовому тарифу плюс доставка и надбавки минус применённый кредит.
// Одна и та же формула используется для оценочной и фактической суммы.
func Total(weight, baseRate, totalFee, addOnTotal, creditApplied decimal.Decimal) decimal.Decimal {
	return Round2(weight.Mul(baseRate).Add(totalFee).Add(addOnTotal).Sub(creditApplied))
}

// Commission рассчитывает комиссию партнёра от фактического веса.
// Надбавки за дополнительные услуги в комиссию не входят — это бизнес-правило.
func Commission(actualWeight, baseRate, commissionRate, totalFee decimal.Decimal) decimal.Decimal {
	return Round2(actualWeight.Mul(baseRate).Mul(commissionRate).Add(totalFee))
}

// CreditForDifference рассчитывает кредит (или долг при отрицательной
// разнице), порождаемый расхождением оценочного и фактического веса.
// Округление выполняется на денежном шаге, сырая разница весов не округляется.
func CreditForDifference(weightDifference, baseRate decimal.Decimal) decimal.Decimal {
	return Round2(weightDifference.Mul(baseRate))
}

package fee

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Calculator рассчитывает комиссию платформы и сумму выплаты коучу.
// Сумма выплаты всегда получается вычитанием, поэтому комиссия и выплата
// в сумме дают исходную сумму без потерь на округлении.
type Calculator struct {
	rate   decimal.Decimal
	minFee decimal.Decimal
	maxFee decimal.Decimal
}

// Split разбивка суммы, освобождённой из escrow.
type Split struct {
	Gross       decimal.Decimal `json:"gross"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
	CoachAmount decimal.Decimal `json:"coach_amount"`
}

// NewCalculator создаёт калькулятор с процентом и границами комиссии.
func NewCalculator(rate, minFee, maxFee decimal.Decimal) (*Calculator, error) {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("fee: процент комиссии должен быть в диапазоне [0, 1), получено %s", rate)
	}
	if minFee.IsNegative() || maxFee.LessThan(minFee) {
		return nil, fmt.Errorf("fee: некорректные границы комиссии [%s, %s]", minFee, maxFee)
	}
	return &Calculator{
		rate:   rate,
		minFee: minFee.Round(2),
		maxFee: maxFee.Round(2),
	}, nil
}

// MinimumFee возвращает нижнюю границу комиссии.
func (c *Calculator) MinimumFee() decimal.Decimal {
	return c.minFee
}

// PlatformFee возвращает комиссию: amount × rate, ограниченную [min, max],
// округлённую до центов по правилу half-up.
// Для нулевой суммы комиссия всё равно равна минимальной.
func (c *Calculator) PlatformFee(amount decimal.Decimal) decimal.Decimal {
	fee := amount.Mul(c.rate)
	if fee.LessThan(c.minFee) {
		fee = c.minFee
	}
	if fee.GreaterThan(c.maxFee) {
		fee = c.maxFee
	}
	return fee.Round(2)
}

// CoachPayout возвращает сумму коучу: amount − PlatformFee(amount).
func (c *Calculator) CoachPayout(amount decimal.Decimal) decimal.Decimal {
	return amount.Sub(c.PlatformFee(amount))
}

// Split считает обе части за один вызов.
func (c *Calculator) Split(amount decimal.Decimal) Split {
	fee := c.PlatformFee(amount)
	return Split{
		Gross:       amount,
		PlatformFee: fee,
		CoachAmount: amount.Sub(fee),
	}
}

package fee

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCalculator(t *testing.T) *Calculator {
	t.Helper()
	calc, err := NewCalculator(decimal.RequireFromString("0.15"), decimal.RequireFromString("1.00"), decimal.RequireFromString("100.00"))
	require.NoError(t, err)
	return calc
}

func TestCalculator_PlatformFee(t *testing.T) {
	calc := newTestCalculator(t)

	tests := []struct {
		name   string
		amount string
		fee    string
	}{
		{name: "процент внутри границ", amount: "45", fee: "6.75"},
		{name: "ниже минимума", amount: "5", fee: "1"},
		{name: "ровно минимум", amount: "6.67", fee: "1"},
		{name: "выше максимума", amount: "1000", fee: "100"},
		{name: "округление half-up", amount: "10.03", fee: "1.5"},
		{name: "округление вверх на половине цента", amount: "0.3", fee: "1"},
		{name: "ноль клемпится к минимуму", amount: "0", fee: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee := calc.PlatformFee(decimal.RequireFromString(tt.amount))
			assert.True(t, decimal.RequireFromString(tt.fee).Equal(fee), "ожидалось %s, получено %s", tt.fee, fee)
		})
	}
}

func TestCalculator_RoundHalfUp(t *testing.T) {
	calc, err := NewCalculator(decimal.RequireFromString("0.1"), decimal.Zero, decimal.RequireFromString("1000"))
	require.NoError(t, err)

	// 12.25 × 0.1 = 1.225 → 1.23
	assert.Equal(t, "1.23", calc.PlatformFee(decimal.RequireFromString("12.25")).StringFixed(2))
	// 12.24 × 0.1 = 1.224 → 1.22
	assert.Equal(t, "1.22", calc.PlatformFee(decimal.RequireFromString("12.24")).StringFixed(2))
}

func TestCalculator_Conservation(t *testing.T) {
	calc := newTestCalculator(t)

	for cents := int64(0); cents <= 200000; cents += 37 {
		amount := decimal.New(cents, -2)
		sum := calc.PlatformFee(amount).Add(calc.CoachPayout(amount))
		if !sum.Equal(amount) {
			t.Fatalf("комиссия + выплата = %s, ожидалось %s", sum, amount)
		}
	}
}

func TestCalculator_Clamping(t *testing.T) {
	calc := newTestCalculator(t)

	for _, raw := range []string{"0.01", "1", "6.66"} {
		amount := decimal.RequireFromString(raw)
		assert.True(t, amount.Mul(decimal.RequireFromString("0.15")).LessThan(calc.MinimumFee()))
		assert.True(t, calc.PlatformFee(amount).Equal(decimal.RequireFromString("1")))
	}

	for _, raw := range []string{"666.67", "1000", "99999.99"} {
		amount := decimal.RequireFromString(raw)
		assert.True(t, calc.PlatformFee(amount).Equal(decimal.RequireFromString("100")))
	}
}

func TestCalculator_ZeroAmountProducesNegativePayout(t *testing.T) {
	calc := newTestCalculator(t)

	payout := calc.CoachPayout(decimal.Zero)
	assert.True(t, payout.Equal(decimal.RequireFromString("-1")))
}

func TestCalculator_Split(t *testing.T) {
	calc := newTestCalculator(t)

	split := calc.Split(decimal.RequireFromString("45"))
	assert.Equal(t, "6.75", split.PlatformFee.StringFixed(2))
	assert.Equal(t, "38.25", split.CoachAmount.StringFixed(2))
	assert.True(t, split.Gross.Equal(split.PlatformFee.Add(split.CoachAmount)))
}

func TestNewCalculator_Validation(t *testing.T) {
	_, err := NewCalculator(decimal.RequireFromString("1"), decimal.Zero, decimal.Zero)
	assert.Error(t, err)

	_, err = NewCalculator(decimal.RequireFromString("-0.1"), decimal.Zero, decimal.Zero)
	assert.Error(t, err)

	_, err = NewCalculator(decimal.RequireFromString("0.1"), decimal.RequireFromString("5"), decimal.RequireFromString("1"))
	assert.Error(t, err)
}

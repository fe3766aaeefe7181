package coupon

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApplyCaseInsensitive(t *testing.T) {
	coupons := []Coupon{{ID: uuid.New(), Code: "SAVE10", Percentage: dec("10"), Active: true}}

	res, err := Apply(dec("200"), "save10", coupons)
	require.NoError(t, err)
	require.True(t, res.Discount.Equal(dec("20")))
	require.Equal(t, "SAVE10", res.Code)
}

func TestApplyInactiveIsNotFound(t *testing.T) {
	coupons := []Coupon{{ID: uuid.New(), Code: "OLD", Percentage: dec("10"), Active: false}}
	_, err := Apply(dec("200"), "OLD", coupons)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = Apply(dec("200"), "", coupons)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDiscountNeverExceedsSubtotal(t *testing.T) {
	for _, pct := range []string{"0.01", "1", "33.33", "99.99", "100"} {
		for _, sub := range []string{"0", "0.01", "1", "999.99", "123456.78"} {
			d := Discount(dec(sub), dec(pct))
			require.True(t, d.LessThanOrEqual(dec(sub)), "pct %s sub %s got %s", pct, sub, d)
			require.False(t, d.IsNegative())
		}
	}
}

func TestChoose(t *testing.T) {
	code, err := Choose("", "SAVE10")
	require.NoError(t, err)
	require.Equal(t, "SAVE10", code)

	code, err = Choose("SAVE10", "save10")
	require.NoError(t, err)
	require.Equal(t, "SAVE10", code)

	code, err = Choose("SAVE10", "")
	require.NoError(t, err)
	require.Equal(t, "SAVE10", code)

	_, err = Choose("SAVE10", "FESTIVE")
	require.ErrorIs(t, err, ErrAlreadyApplied)
}

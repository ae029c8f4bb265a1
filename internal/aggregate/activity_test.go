package aggregate

import (
	"testing"
)

func TestActivity_SelfSellIncludesSubjectFee(t *testing.T) {
	a := NewActivity()

	// Y sells own shares: proceeds fold the subject fee back in.
	tr := ethTrade(addrY, addrY, false, 2, 10, 1, 3)
	a.Apply(&tr)

	_, sold, _ := a.Totals(addrY)
	if !sold.Equal(d(13)) {
		t.Errorf("expected total_value_sold=13 (eth+subject_fee), got %s", sold)
	}
}

func TestActivity_ThirdPartySellExcludesFees(t *testing.T) {
	a := NewActivity()

	tr := ethTrade(addrX, addrY, false, 2, 10, 1, 3)
	a.Apply(&tr)

	_, sold, _ := a.Totals(addrX)
	if !sold.Equal(d(10)) {
		t.Errorf("expected total_value_sold=10 (principal only), got %s", sold)
	}
}

func TestActivity_ThirdPartyBuyIncludesBothFees(t *testing.T) {
	a := NewActivity()

	tr := ethTrade(addrX, addrY, true, 2, 10, 1, 3)
	a.Apply(&tr)

	bought, _, _ := a.Totals(addrX)
	if !bought.Equal(d(14)) {
		t.Errorf("expected total_value_bought=14, got %s", bought)
	}
}

func TestActivity_MissingTimestampAddsNoDay(t *testing.T) {
	a := NewActivity()

	tr := ethTrade(addrX, addrY, true, 1, 1, 0, 0)
	tr.Timestamp = 0
	a.Apply(&tr)

	_, _, days := a.Totals(addrX)
	if days != 0 {
		t.Errorf("trade without timestamp must not count a day, got %d", days)
	}
}

func TestActivity_UnknownTraderAllZero(t *testing.T) {
	a := NewActivity()

	bought, sold, days := a.Totals(addrZ)
	if !bought.IsZero() || !sold.IsZero() || days != 0 {
		t.Errorf("unknown trader should read zero, got %s/%s/%d", bought, sold, days)
	}
}

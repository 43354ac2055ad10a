package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAccount_Reserve(t *testing.T) {
	t.Run("pending buy holds fee and notional", func(t *testing.T) {
		a := &Account{Cash: d("1000")}
		o := &Order{Type: OrderTypeBuy, Price: d("5.00"), Quantity: 10, Fee: d("20")}
		a.Reserve(o)
		if !a.Cash.Equal(d("930")) {
			t.Errorf("Expected 930, got %s", a.Cash)
		}
	})

	t.Run("sell only pays the fee", func(t *testing.T) {
		a := &Account{Cash: d("1000")}
		o := &Order{Type: OrderTypeSell, Price: d("5.00"), Quantity: 10, Fee: d("20")}
		a.Reserve(o)
		if !a.Cash.Equal(d("980")) {
			t.Errorf("Expected 980, got %s", a.Cash)
		}
	})
}

func TestAccount_Refund(t *testing.T) {
	a := &Account{Cash: d("930")}
	buy := &Order{Type: OrderTypeBuy, Price: d("5.00"), Quantity: 10, Fee: d("20")}
	a.Refund(buy)
	if !a.Cash.Equal(d("980")) {
		t.Errorf("Expected fee to be kept, got %s", a.Cash)
	}

	executed := &Order{Type: OrderTypeBuy, Price: d("5.00"), Quantity: 10, Executed: true}
	a.Refund(executed)
	if !a.Cash.Equal(d("980")) {
		t.Errorf("Executed orders are never refunded, got %s", a.Cash)
	}
}

func TestAccount_ApplyFill(t *testing.T) {
	a := &Account{Cash: d("100")}
	o := &Order{Type: OrderTypeBuy, Price: d("5.00"), Quantity: 10}
	a.ApplyFill(o, d("-1.00"))

	if !a.Cash.Equal(d("90")) {
		t.Errorf("Expected 90, got %s", a.Cash)
	}
	if !o.CashHistory.Equal(d("90")) {
		t.Errorf("Expected cash history 90, got %s", o.CashHistory)
	}
	if !a.CanAfford(d("90")) || a.CanAfford(d("90.01")) {
		t.Error("CanAfford boundary is wrong")
	}
}

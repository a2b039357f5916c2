package models

import "testing"

func TestDeskFee(t *testing.T) {
	tests := []struct {
		price int64
		want  int64
	}{
		{1_234_560_000, 12_345_600},
		{100, 1},
		{199, 1}, // truncated, never rounded up
		{99, 0},
		{0, 0},
	}
	for _, tt := range tests {
		if got := DeskFee(tt.price); got != tt.want {
			t.Errorf("DeskFee(%d) = %d, want %d", tt.price, got, tt.want)
		}
	}
}

func TestRequiredEscrow(t *testing.T) {
	price := int64(1_234_560_000)
	if got := RequiredEscrow(price, false); got != price {
		t.Errorf("seller-taker escrow = %d, want %d", got, price)
	}
	if got := RequiredEscrow(price, true); got != price+DeskFee(price) {
		t.Errorf("buyer-taker escrow = %d, want %d", got, price+DeskFee(price))
	}
}

func TestParseTON(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1.23456", 1_234_560_000, false},
		{"0.0017", 1_700_000, false},
		{"0", 0, false},
		{"not-a-number", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTON(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTON(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseTON(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

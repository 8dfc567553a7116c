package protocol

import (
	"math"
	"testing"
)

func fixtureMessage() BidOfferV3 {
	var msg BidOfferV3
	msg.Symbol = "aot"
	for i := 0; i < Levels; i++ {
		msg.BidPrices[i] = Money{Units: int64(25 + i), Nanos: 500_000_000}
		msg.BidVolumes[i] = int64(1000 + i)
		msg.AskPrices[i] = Money{Units: int64(26 + i), Nanos: 0}
		msg.AskVolumes[i] = int64(500 + i)
	}
	msg.BidFlag = 1
	msg.AskFlag = 1
	return msg
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := fixtureMessage()
	got, err := DecodeBidOfferV3(EncodeBidOfferV3(want))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if got.Symbol != want.Symbol {
		t.Fatalf("Symbol = %q, want %q", got.Symbol, want.Symbol)
	}
	if got.BidFlag != want.BidFlag || got.AskFlag != want.AskFlag {
		t.Fatalf("flags = (%d,%d), want (%d,%d)", got.BidFlag, got.AskFlag, want.BidFlag, want.AskFlag)
	}
	for i := 0; i < Levels; i++ {
		if got.BidPrices[i] != want.BidPrices[i] {
			t.Fatalf("BidPrices[%d] = %+v, want %+v", i, got.BidPrices[i], want.BidPrices[i])
		}
		if got.AskPrices[i] != want.AskPrices[i] {
			t.Fatalf("AskPrices[%d] = %+v, want %+v", i, got.AskPrices[i], want.AskPrices[i])
		}
		if got.BidVolumes[i] != want.BidVolumes[i] {
			t.Fatalf("BidVolumes[%d] = %d, want %d", i, got.BidVolumes[i], want.BidVolumes[i])
		}
		if got.AskVolumes[i] != want.AskVolumes[i] {
			t.Fatalf("AskVolumes[%d] = %d, want %d", i, got.AskVolumes[i], want.AskVolumes[i])
		}
	}
}

func TestMoneyFloat64(t *testing.T) {
	cases := []struct {
		units int64
		nanos int32
		want  float64
	}{
		{25, 500_000_000, 25.5},
		{26, 0, 26.0},
		{-5, -250_000_000, -5.25},
		{0, 0, 0},
	}
	for _, tc := range cases {
		m := Money{Units: tc.units, Nanos: tc.nanos}
		if got := m.Float64(); math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("Money{%d,%d}.Float64() = %v, want %v", tc.units, tc.nanos, got, tc.want)
		}
	}
}

func TestDecodeBidOfferV3TooShortForHeader(t *testing.T) {
	if _, err := DecodeBidOfferV3([]byte{0x01}); err == nil {
		t.Fatal("expected error for truncated symbol-length header")
	}
}

func TestDecodeBidOfferV3InvalidSymbolLength(t *testing.T) {
	b := []byte{0xFF, 0xFF} // symLen = 65535, far beyond the buffer
	if _, err := DecodeBidOfferV3(b); err == nil {
		t.Fatal("expected error for invalid symbol length")
	}
}

func TestDecodeBidOfferV3Truncated(t *testing.T) {
	full := EncodeBidOfferV3(fixtureMessage())
	truncated := full[:len(full)-10]
	if _, err := DecodeBidOfferV3(truncated); err == nil {
		t.Fatal("expected error for truncated message body")
	}
}

func TestDecodeBidOfferV3NeverPanics(t *testing.T) {
	inputs := [][]byte{
		nil,
		{},
		{0x00, 0x00},
		{0x01, 0x00, 'A'},
	}
	for _, in := range inputs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("DecodeBidOfferV3 panicked on %v: %v", in, r)
				}
			}()
			_, _ = DecodeBidOfferV3(in)
		}()
	}
}

package event

import "testing"

func TestTopOfBookIsAuction(t *testing.T) {
	cases := []struct {
		name     string
		bidFlag  Flag
		askFlag  Flag
		expected bool
	}{
		{"normal both sides", FlagNormal, FlagNormal, false},
		{"bid ato", FlagAto, FlagNormal, true},
		{"ask atc", FlagNormal, FlagAtc, true},
		{"undefined", FlagUndefined, FlagUndefined, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tob := TopOfBook{Symbol: "AOT", BidFlag: tc.bidFlag, AskFlag: tc.askFlag}
			if got := tob.IsAuction(); got != tc.expected {
				t.Fatalf("IsAuction() = %v, want %v", got, tc.expected)
			}
		})
	}
}

func TestEventSymbolDispatch(t *testing.T) {
	top := NewTopOfBookFast(TopOfBook{Symbol: "AOT"})
	if got := top.Symbol(); got != "AOT" {
		t.Fatalf("Symbol() = %q, want AOT", got)
	}

	depth := NewDepthBookFast(DepthBook{Symbol: "PTT"})
	if got := depth.Symbol(); got != "PTT" {
		t.Fatalf("Symbol() = %q, want PTT", got)
	}
}

func TestNewTopOfBookFastDoesNotDefaultEpoch(t *testing.T) {
	ev := NewTopOfBookFast(TopOfBook{Symbol: "AOT", ConnectionEpoch: 0})
	if ev.TopOfBook.ConnectionEpoch != 0 {
		t.Fatalf("expected zero-value epoch to be preserved, got %d", ev.TopOfBook.ConnectionEpoch)
	}
}

func TestNewTopOfBookValidatedNormalizesSymbol(t *testing.T) {
	ev, err := NewTopOfBookValidated(TopOfBook{Symbol: "  aot  "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.TopOfBook.Symbol != "AOT" {
		t.Fatalf("Symbol = %q, want AOT", ev.TopOfBook.Symbol)
	}
}

func TestNewTopOfBookValidatedRejectsEmptySymbol(t *testing.T) {
	if _, err := NewTopOfBookValidated(TopOfBook{Symbol: "   "}); err == nil {
		t.Fatal("expected error for empty symbol")
	}
}

func TestNewTopOfBookValidatedRejectsNegativeTimestamps(t *testing.T) {
	if _, err := NewTopOfBookValidated(TopOfBook{Symbol: "AOT", RecvTSNanos: -1}); err == nil {
		t.Fatal("expected error for negative recv_ts_ns")
	}
	if _, err := NewTopOfBookValidated(TopOfBook{Symbol: "AOT", RecvMonoNanos: -1}); err == nil {
		t.Fatal("expected error for negative recv_mono_ns")
	}
}

func TestNewDepthBookValidatedRejectsEmptySymbol(t *testing.T) {
	if _, err := NewDepthBookValidated(DepthBook{Symbol: ""}); err == nil {
		t.Fatal("expected error for empty symbol")
	}
}

func TestFlagString(t *testing.T) {
	if FlagAto.String() != "ATO" {
		t.Fatalf("FlagAto.String() = %q, want ATO", FlagAto.String())
	}
	if got := Flag(99).String(); got != "FLAG(99)" {
		t.Fatalf("Flag(99).String() = %q, want FLAG(99)", got)
	}
}

package types

import (
	"encoding/json"
	"testing"
)

func TestTradeDedupeKeyPrefersTransactionHash(t *testing.T) {
	t.Parallel()
	tr := Trade{TransactionHash: "0xabc", CompositeHash: "fallback"}
	if got := tr.DedupeKey(); got != "0xabc" {
		t.Errorf("DedupeKey() = %q, want 0xabc", got)
	}
	tr2 := Trade{CompositeHash: "fallback"}
	if got := tr2.DedupeKey(); got != "fallback" {
		t.Errorf("DedupeKey() = %q, want fallback", got)
	}
}

func TestMarketIsBinary(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		mkt  Market
		want bool
	}{
		{"binary", Market{Outcomes: StrList{"Yes", "No"}, TokenIDs: StrList{"t1", "t2"}}, true},
		{"multi-outcome", Market{Outcomes: StrList{"A", "B", "C"}, TokenIDs: StrList{"t1", "t2", "t3"}}, false},
		{"missing token id", Market{Outcomes: StrList{"Yes", "No"}, TokenIDs: StrList{"t1", ""}}, false},
		{"no tokens yet", Market{Outcomes: StrList{"Yes", "No"}}, false},
	}
	for _, c := range cases {
		if got := c.mkt.IsBinary(); got != c.want {
			t.Errorf("%s: IsBinary() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestMarketYesNoTokenID(t *testing.T) {
	t.Parallel()
	mkt := Market{TokenIDs: StrList{"yes-id", "no-id"}}
	if mkt.YesTokenID() != "yes-id" || mkt.NoTokenID() != "no-id" {
		t.Errorf("got yes=%s no=%s", mkt.YesTokenID(), mkt.NoTokenID())
	}
	empty := Market{}
	if empty.YesTokenID() != "" || empty.NoTokenID() != "" {
		t.Errorf("expected empty token IDs on a market with no tokens")
	}
}

func TestFlexStringUnmarshalsStringAndNumber(t *testing.T) {
	t.Parallel()
	var fromString FlexString
	if err := json.Unmarshal([]byte(`"1234.5"`), &fromString); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if fromString.Float64() != 1234.5 {
		t.Errorf("got %v, want 1234.5", fromString.Float64())
	}

	var fromNumber FlexString
	if err := json.Unmarshal([]byte(`1234.5`), &fromNumber); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if fromNumber.Float64() != 1234.5 {
		t.Errorf("got %v, want 1234.5", fromNumber.Float64())
	}

	var fromNull FlexString
	if err := json.Unmarshal([]byte(`null`), &fromNull); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if fromNull != "" {
		t.Errorf("expected empty string for null, got %q", fromNull)
	}
}

func TestFlexStringSliceHandlesNativeAndEncodedArrays(t *testing.T) {
	t.Parallel()
	var native FlexStringSlice
	if err := json.Unmarshal([]byte(`["Yes","No"]`), &native); err != nil {
		t.Fatalf("unmarshal native array: %v", err)
	}
	if len(native) != 2 || native[0] != "Yes" || native[1] != "No" {
		t.Fatalf("got %v", native)
	}

	var encoded FlexStringSlice
	if err := json.Unmarshal([]byte(`"[\"Yes\",\"No\"]"`), &encoded); err != nil {
		t.Fatalf("unmarshal encoded array: %v", err)
	}
	if len(encoded) != 2 || encoded[0] != "Yes" || encoded[1] != "No" {
		t.Fatalf("got %v", encoded)
	}

	var empty FlexStringSlice
	if err := json.Unmarshal([]byte(`null`), &empty); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if empty != nil {
		t.Fatalf("expected nil slice for null, got %v", empty)
	}
}

func TestGammaEventResolvedFieldsPreferNumericVariant(t *testing.T) {
	t.Parallel()
	liqNum := 5000.0
	g := GammaEvent{LiquidityNum: &liqNum, Liquidity: FlexString("1")}
	if got := g.ResolvedLiquidity(); got != 5000.0 {
		t.Errorf("ResolvedLiquidity() = %v, want 5000", got)
	}

	g2 := GammaEvent{Liquidity: FlexString("750.25")}
	if got := g2.ResolvedLiquidity(); got != 750.25 {
		t.Errorf("ResolvedLiquidity() fallback = %v, want 750.25", got)
	}
}

func TestGammaEventResolvedNegRiskPrefersPrimaryFlag(t *testing.T) {
	t.Parallel()
	yes, no := true, false
	g := GammaEvent{NegRisk: &yes, NegRiskAlt: &no}
	if !g.ResolvedNegRisk() {
		t.Errorf("expected primary neg_risk flag to win")
	}
	g2 := GammaEvent{NegRiskAlt: &yes}
	if !g2.ResolvedNegRisk() {
		t.Errorf("expected fallback flag to be used when primary is absent")
	}
	g3 := GammaEvent{}
	if g3.ResolvedNegRisk() {
		t.Errorf("expected default false when neither flag is present")
	}
}

func TestWSBookEventNormalizesSideNaming(t *testing.T) {
	t.Parallel()
	withBidsAsks := WSBookEvent{
		Bids: []RESTPriceLevel{{Price: "0.5", Size: "10"}},
		Asks: []RESTPriceLevel{{Price: "0.6", Size: "20"}},
	}
	if len(withBidsAsks.NormalizedBids()) != 1 || len(withBidsAsks.NormalizedAsks()) != 1 {
		t.Fatalf("expected bids/asks to pass through unchanged")
	}

	withBuysSells := WSBookEvent{
		Buys:  []RESTPriceLevel{{Price: "0.5", Size: "10"}},
		Sells: []RESTPriceLevel{{Price: "0.6", Size: "20"}},
	}
	if len(withBuysSells.NormalizedBids()) != 1 || len(withBuysSells.NormalizedAsks()) != 1 {
		t.Fatalf("expected buys/sells to normalize into bids/asks")
	}
}

func TestIntSetRoundTripsThroughJSON(t *testing.T) {
	t.Parallel()
	s := NewIntSet(1, 2, 3)
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out IntSet
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Has(1) || !out.Has(2) || !out.Has(3) || out.Has(4) {
		t.Fatalf("round-tripped set missing members: %v", out)
	}
}

package types

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ————————————————————————————————————————————————————————————————————————
// Duck-typed scalar wrappers — absorb the schema drift spec §4.B describes:
// numeric fields may arrive as JSON strings or numbers; flag names vary.
// ————————————————————————————————————————————————————————————————————————

// FlexString unmarshals from either a JSON string or a JSON number,
// always producing a Go string. Used for upstream fields whose type
// flips between string and number across endpoints (volume, liquidity).
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = ""
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		var unquoted string
		if err := json.Unmarshal(data, &unquoted); err != nil {
			return err
		}
		*f = FlexString(unquoted)
		return nil
	}
	*f = FlexString(s)
	return nil
}

// Float64 best-effort parses the wrapped value as a float, 0 on failure.
func (f FlexString) Float64() float64 {
	v, _ := strconv.ParseFloat(string(f), 64)
	return v
}

// FlexStringSlice unmarshals a field that upstreams sometimes send as a
// native JSON array of strings and sometimes as a JSON-encoded string
// containing that array (e.g. Gamma API's "outcomes": "[\"Yes\",\"No\"]").
type FlexStringSlice []string

func (f *FlexStringSlice) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*f = nil
		return nil
	}
	if trimmed[0] == '[' {
		var arr []string
		if err := json.Unmarshal(data, &arr); err != nil {
			return err
		}
		*f = arr
		return nil
	}
	// JSON-encoded string containing an array, e.g. "[\"Yes\",\"No\"]"
	var inner string
	if err := json.Unmarshal(data, &inner); err != nil {
		return err
	}
	inner = strings.TrimSpace(inner)
	if inner == "" {
		*f = nil
		return nil
	}
	var arr []string
	if err := json.Unmarshal([]byte(inner), &arr); err != nil {
		// last resort: comma-split a bare list
		parts := strings.Split(strings.Trim(inner, "[]"), ",")
		for i, p := range parts {
			parts[i] = strings.Trim(strings.TrimSpace(p), `"`)
		}
		*f = parts
		return nil
	}
	*f = arr
	return nil
}

// ————————————————————————————————————————————————————————————————————————
// REST upstream payload shapes (§6 External Interfaces)
// ————————————————————————————————————————————————————————————————————————

// GammaEvent is one page entry from the events/markets discovery endpoint.
// Field types mirror the Gamma API's actual quirks: outcomes/clobTokenIds
// may be plain arrays or JSON-encoded strings; negRisk appears under
// different keys depending on endpoint version (negRisk vs neg_risk).
type GammaEvent struct {
	ID              string          `json:"id"`
	ConditionID     string          `json:"conditionId"`
	Slug            string          `json:"slug"`
	Question        string          `json:"question"`
	Active          bool            `json:"active"`
	Closed          bool            `json:"closed"`
	StartDate       string          `json:"startDate"`
	EndDate         string          `json:"endDate"`
	Liquidity       FlexString      `json:"liquidity"`
	LiquidityNum    *float64        `json:"liquidityNum"`
	Volume          FlexString      `json:"volume"`
	VolumeNum       *float64        `json:"volumeNum"`
	Outcomes        FlexStringSlice `json:"outcomes"`
	ClobTokenIds    FlexStringSlice `json:"clobTokenIds"`
	NegRisk         *bool           `json:"negRisk"`
	NegRiskAlt      *bool           `json:"neg_risk"`
	Tags            []GammaTag      `json:"tags"`
}

// GammaTag is a denormalized tag attached to an event/market.
type GammaTag struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
	Slug  string `json:"slug"`
}

// ResolvedNegRisk applies the §4.B rule: prefer whichever neg-risk flag
// name is present; default false.
func (g GammaEvent) ResolvedNegRisk() bool {
	if g.NegRisk != nil {
		return *g.NegRisk
	}
	if g.NegRiskAlt != nil {
		return *g.NegRiskAlt
	}
	return false
}

// ResolvedLiquidity prefers the numeric variant per §4.B.
func (g GammaEvent) ResolvedLiquidity() float64 {
	if g.LiquidityNum != nil {
		return *g.LiquidityNum
	}
	return g.Liquidity.Float64()
}

// ResolvedVolume prefers the numeric variant per §4.B.
func (g GammaEvent) ResolvedVolume() float64 {
	if g.VolumeNum != nil {
		return *g.VolumeNum
	}
	return g.Volume.Float64()
}

// DataAPITrade is one entry from the Data API's trades endpoint
// (takerOnly=true, filterType=CASH).
type DataAPITrade struct {
	ProxyWallet     string     `json:"proxyWallet"`
	User            string     `json:"user"`
	ConditionID     string     `json:"conditionId"`
	Asset           string     `json:"asset"` // token ID
	Side            string     `json:"side"`
	Size            FlexString `json:"size"`
	Price           FlexString `json:"price"`
	TimestampMs     FlexString `json:"timestamp"`
	TransactionHash string     `json:"transactionHash"`
}

// OpenInterestEntry is one entry of the open-interest batch response.
type OpenInterestEntry struct {
	Market string     `json:"market"` // condition ID
	Value  FlexString `json:"value"`
}

// RESTPriceLevel is a single book level as returned over REST (strings).
type RESTPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// BookResponse is the REST response from GET /book for a single token.
type BookResponse struct {
	Market       string           `json:"market"`
	AssetID      string           `json:"asset_id"`
	Bids         []RESTPriceLevel `json:"bids"`
	Asks         []RESTPriceLevel `json:"asks"`
	Hash         string           `json:"hash"`
	Timestamp    string           `json:"timestamp"` // RFC3339
	MinOrderSize string           `json:"min_order_size"`
	TickSize     string           `json:"tick_size"`
	NegRisk      bool             `json:"neg_risk"`
}

// PositionEntry is one row of the positions endpoint for a wallet.
type PositionEntry struct {
	ConditionID string     `json:"conditionId"`
	Asset       string     `json:"asset"`
	Size        FlexString `json:"size"`
	Redeemable  bool       `json:"redeemable"`
}

// ————————————————————————————————————————————————————————————————————————
// WebSocket event shapes (§6 — market channel)
// ————————————————————————————————————————————————————————————————————————

// WSEnvelope is used to peek at event_type before full unmarshalling.
type WSEnvelope struct {
	EventType string `json:"event_type"`
}

// WSBookEvent is a full order book snapshot. Upstreams label sides either
// bids/asks or buys/sells — NormalizedBids()/NormalizedAsks() normalize to
// one accessor.
type WSBookEvent struct {
	EventType string           `json:"event_type"`
	AssetID   string           `json:"asset_id"`
	Market    string           `json:"market"`
	Timestamp string           `json:"timestamp"` // ms epoch string
	Hash      string           `json:"hash"`
	Bids      []RESTPriceLevel `json:"bids"`
	Asks      []RESTPriceLevel `json:"asks"`
	Buys      []RESTPriceLevel `json:"buys"`
	Sells     []RESTPriceLevel `json:"sells"`
}

// NormalizedBids returns Bids if present, else Buys.
func (e WSBookEvent) NormalizedBids() []RESTPriceLevel {
	if len(e.Bids) > 0 {
		return e.Bids
	}
	return e.Buys
}

// NormalizedAsks returns Asks if present, else Sells.
func (e WSBookEvent) NormalizedAsks() []RESTPriceLevel {
	if len(e.Asks) > 0 {
		return e.Asks
	}
	return e.Sells
}

// WSPriceChange is a single price level update within a price_change event.
type WSPriceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"` // new aggregated size at this level, 0 = removed
	Side    string `json:"side"` // "BUY"/"SELL" (bid/ask side of the book)
	Hash    string `json:"hash"`
}

// WSPriceChangeEvent is an incremental order book update.
type WSPriceChangeEvent struct {
	EventType    string          `json:"event_type"`
	Market       string          `json:"market"`
	Timestamp    string          `json:"timestamp"`
	PriceChanges []WSPriceChange `json:"price_changes"`
}

// WSTickSizeChangeEvent updates a token's minimum price increment.
type WSTickSizeChangeEvent struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	NewTick   string `json:"new_tick_size"`
	Timestamp string `json:"timestamp"`
}

// WSLastTradePriceEvent reports the most recent trade price for a token.
// Optional/feature-flagged per §6; tolerated when absent.
type WSLastTradePriceEvent struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	Timestamp string `json:"timestamp"`
}

// WSNewMarketEvent and WSMarketResolvedEvent are informational lifecycle
// events; wsfeed only logs them at debug level and writes nothing to
// storage for them. Both optional/feature-flagged.
type WSNewMarketEvent struct {
	EventType   string `json:"event_type"`
	ConditionID string `json:"market"`
	Timestamp   string `json:"timestamp"`
}

type WSMarketResolvedEvent struct {
	EventType   string `json:"event_type"`
	ConditionID string `json:"market"`
	Timestamp   string `json:"timestamp"`
}

// WSSubscribeMsg is the initial subscription message for the market channel.
type WSSubscribeMsg struct {
	Type     string   `json:"type"` // "market"
	AssetIDs []string `json:"assets_ids"`
}

// WSUpdateMsg dynamically subscribes/unsubscribes after the initial connect.
type WSUpdateMsg struct {
	AssetIDs  []string `json:"assets_ids"`
	Operation string   `json:"operation"` // "subscribe" | "unsubscribe"
}

package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// MarketFeeTier is the YAML row shape for one fee-tier entry (spec §3/§4.5).
type MarketFeeTier struct {
	MinVolume              string `yaml:"min_volume"`
	TakerFeeNumerator      int64  `yaml:"taker_fee_numerator"`
	TakerFeeDenominator    int64  `yaml:"taker_fee_denominator"`
	MakerRebateNumerator   int64  `yaml:"maker_rebate_numerator"`
	MakerRebateDenominator int64  `yaml:"maker_rebate_denominator"`
}

// MarketEntry is one perp market's risk-and-fee configuration, loaded
// administratively (spec §1 OUT OF SCOPE: administrative instructions) and
// applied to a market.PerpMarket by the surrounding host at initialize_market
// time -- this package only parses the table, it never touches core state.
type MarketEntry struct {
	MarketIndex            uint16          `yaml:"market_index"`
	OracleKey               string          `yaml:"oracle_key"`
	MarginRatioInitial      uint32          `yaml:"margin_ratio_initial"`
	MarginRatioMaintenance  uint32          `yaml:"margin_ratio_maintenance"`
	MarginRatioPartial      uint32          `yaml:"margin_ratio_partial"`
	IMFFactor               string          `yaml:"imf_factor"`
	LiquidatorFeeBps        uint32          `yaml:"liquidator_fee_bps"`
	FeeTiers                []MarketFeeTier `yaml:"fee_tiers"`
	FullLiquidationPenalty  [2]int64        `yaml:"full_liquidation_penalty"`
	PartialLiquidationClose uint32          `yaml:"partial_liquidation_close_percentage"`
}

// MarketTable is the root document of the per-market YAML config file.
type MarketTable struct {
	Markets []MarketEntry `yaml:"markets"`
}

// LoadMarketTable reads a MarketTable from path.
func LoadMarketTable(path string) (*MarketTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	table := &MarketTable{}
	if err := yaml.Unmarshal(data, table); err != nil {
		return nil, err
	}
	return table, nil
}

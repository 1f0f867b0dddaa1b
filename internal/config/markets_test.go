package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleMarketTable = `
markets:
  - market_index: 0
    oracle_key: "PERP-0"
    margin_ratio_initial: 100000
    margin_ratio_maintenance: 50000
    margin_ratio_partial: 62500
    imf_factor: "0"
    liquidator_fee_bps: 50
    fee_tiers:
      - min_volume: "0"
        taker_fee_numerator: 5
        taker_fee_denominator: 10000
        maker_rebate_numerator: 3
        maker_rebate_denominator: 10000
    full_liquidation_penalty: [5, 100]
    partial_liquidation_close_percentage: 250000
`

func TestLoadMarketTable_ParsesMarketsAndFeeTiers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "markets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleMarketTable), 0o600))

	table, err := LoadMarketTable(path)
	require.NoError(t, err)
	require.Len(t, table.Markets, 1)

	m := table.Markets[0]
	require.Equal(t, uint16(0), m.MarketIndex)
	require.Equal(t, "PERP-0", m.OracleKey)
	require.Equal(t, uint32(100_000), m.MarginRatioInitial)
	require.Len(t, m.FeeTiers, 1)
	require.Equal(t, int64(5), m.FeeTiers[0].TakerFeeNumerator)
}

func TestLoadMarketTable_MissingFileReturnsError(t *testing.T) {
	_, err := LoadMarketTable(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

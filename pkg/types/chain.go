// Package types holds the values observed from a Bitcoin node and the fee
// estimation service.
package types

// ChainState is a snapshot of getblockchaininfo.
type ChainState struct {
	Chain                string  `json:"chain"`
	Height               uint64  `json:"blocks"`
	Headers              uint64  `json:"headers"`
	BestBlockHash        string  `json:"bestblockhash"`
	Difficulty           float64 `json:"difficulty"`
	MedianTime           int64   `json:"mediantime"`
	VerificationProgress float64 `json:"verificationprogress"`
	InitialBlockDownload bool    `json:"initialblockdownload"`
	ChainWork            string  `json:"chainwork"`
	SizeOnDisk           uint64  `json:"size_on_disk"`
	Pruned               bool    `json:"pruned"`
	Warnings             string  `json:"warnings"`
}

// Syncing reports whether the node is still catching up with the best
// known header.
func (s ChainState) Syncing() bool {
	return s.InitialBlockDownload || s.Height < s.Headers
}

// FeeRatePercentiles are the 10th, 25th, 50th, 75th and 90th feerate
// percentiles of a block, in sat/vB.
type FeeRatePercentiles [5]uint64

// BlockStats is a snapshot of getblockstats for one height.
// Amounts are in satoshis, fee rates in sat/vB.
type BlockStats struct {
	Height             uint64             `json:"height"`
	BlockHash          string             `json:"blockhash"`
	Time               int64              `json:"time"`
	MedianTime         int64              `json:"mediantime"`
	Txs                uint64             `json:"txs"`
	Ins                uint64             `json:"ins"`
	Outs               uint64             `json:"outs"`
	AvgFee             uint64             `json:"avgfee"`
	AvgFeeRate         uint64             `json:"avgfeerate"`
	AvgTxSize          uint64             `json:"avgtxsize"`
	FeeRatePercentiles FeeRatePercentiles `json:"feerate_percentiles"`
	MaxFee             uint64             `json:"maxfee"`
	MaxFeeRate         uint64             `json:"maxfeerate"`
	MaxTxSize          uint64             `json:"maxtxsize"`
	MedianFee          uint64             `json:"medianfee"`
	MedianTxSize       uint64             `json:"mediantxsize"`
	MinFee             uint64             `json:"minfee"`
	MinFeeRate         uint64             `json:"minfeerate"`
	MinTxSize          uint64             `json:"mintxsize"`
	Subsidy            uint64             `json:"subsidy"`
	SegwitTotalSize    uint64             `json:"swtotal_size"`
	SegwitTotalWeight  uint64             `json:"swtotal_weight"`
	SegwitTxs          uint64             `json:"swtxs"`
	TotalOut           uint64             `json:"total_out"`
	TotalSize          uint64             `json:"total_size"`
	TotalWeight        uint64             `json:"total_weight"`
	TotalFee           uint64             `json:"totalfee"`
	UTXOIncrease       int64              `json:"utxo_increase"`
	UTXOSizeIncrease   int64              `json:"utxo_size_inc"`
}

// FeeEstimate holds recommended fee rates in sat/vB bucketed by desired
// confirmation speed.
type FeeEstimate struct {
	FastestFee  uint64 `json:"fastestFee"`
	HalfHourFee uint64 `json:"halfHourFee"`
	HourFee     uint64 `json:"hourFee"`
	EconomyFee  uint64 `json:"economyFee"`
	MinimumFee  uint64 `json:"minimumFee"`
}

// FeeTier is one named rate of a FeeEstimate.
type FeeTier struct {
	Name string `json:"name"`
	Rate uint64 `json:"rate"`
}

// Tiers returns the rates from fastest to minimum.
func (f FeeEstimate) Tiers() []FeeTier {
	return []FeeTier{
		{Name: "fastest", Rate: f.FastestFee},
		{Name: "half_hour", Rate: f.HalfHourFee},
		{Name: "hour", Rate: f.HourFee},
		{Name: "economy", Rate: f.EconomyFee},
		{Name: "minimum", Rate: f.MinimumFee},
	}
}

package domain

// DetectorMessage is the closed set of messages an Ingestor emits.
// Dispatch is a type switch over the three concrete types below, not
// an inheritance hierarchy.
type DetectorMessage interface {
	isDetectorMessage()
}

// BlockStart opens a new block's update batch.
type BlockStart struct {
	BlockNumber uint64
	TimestampMs uint64
}

// MarketUpdate carries one pool's fresh model. Model is already the
// materialized PoolModel rather than a separate raw wire encoding:
// PoolModel's Kind-tagged variant already is the "sufficient to
// materialize a fresh PoolModel" shape the ingestor needs to produce.
type MarketUpdate struct {
	PoolID   string
	Exchange ExchangeId
	Pair     TradingPair
	Model    PoolModel
}

// BlockEnd closes the batch for BlockNumber and triggers detection.
type BlockEnd struct {
	BlockNumber uint64
}

func (BlockStart) isDetectorMessage()   {}
func (MarketUpdate) isDetectorMessage() {}
func (BlockEnd) isDetectorMessage()     {}

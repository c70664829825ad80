// Package backtest replays a recorded sequence of DetectorMessages
// through the same Scheduler used live, for offline tuning of
// thresholds. Replay is the simplest thing that works: recorded rows
// fed in order, no replay-speed throttling, no reordering.
package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aptos-mm/arbdetect/internal/domain"
	"github.com/aptos-mm/arbdetect/internal/ingestor"
)

// RunSimpleCSV does not log itself; the caller (cmd/arbdetect/main.go)
// reports rows replayed through the shared zerolog logger.

// CSV row shape, one row per ingestor event:
//
//	event,block_number,pool_id,exchange,asset_x,asset_y,reserve_x,reserve_y,fee_bps
//
// event is one of "start", "update", "end". "update" rows populate a
// ConstantProduct PoolModel; every field after block_number is
// ignored on "start"/"end" rows. Env var: ARBDETECT_BACKTEST_CSV=/path/to/file.csv
func RunSimpleCSV(in *ingestor.Fake) (rows int, err error) {
	path := os.Getenv("ARBDETECT_BACKTEST_CSV")
	if path == "" {
		return 0, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	for {
		rec, rerr := r.Read()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rows, rerr
		}
		if len(rec) < 2 {
			continue
		}
		msg, perr := parseRow(rec)
		if perr != nil {
			continue
		}
		rows++
		in.Publish(msg)
	}
	return rows, nil
}

func parseRow(rec []string) (domain.DetectorMessage, error) {
	event := rec[0]
	blockNumber, _ := strconv.ParseUint(rec[1], 10, 64)

	switch event {
	case "start":
		return domain.BlockStart{BlockNumber: blockNumber, TimestampMs: uint64(time.Now().UnixMilli())}, nil
	case "end":
		return domain.BlockEnd{BlockNumber: blockNumber}, nil
	case "update":
		if len(rec) < 9 {
			return nil, fmt.Errorf("backtest: short update row")
		}
		reserveX, err := decimal.NewFromString(rec[6])
		if err != nil {
			return nil, err
		}
		reserveY, err := decimal.NewFromString(rec[7])
		if err != nil {
			return nil, err
		}
		feeBps, _ := strconv.ParseUint(rec[8], 10, 32)
		return domain.MarketUpdate{
			PoolID:   rec[2],
			Exchange: domain.ExchangeId(rec[3]),
			Pair:     domain.TradingPair{AssetX: domain.Asset(rec[4]), AssetY: domain.Asset(rec[5])},
			Model: domain.PoolModel{
				Kind:     domain.KindConstantProduct,
				ReserveX: reserveX,
				ReserveY: reserveY,
				FeeBps:   uint32(feeBps),
			},
		}, nil
	default:
		return nil, fmt.Errorf("backtest: unknown event %q", event)
	}
}

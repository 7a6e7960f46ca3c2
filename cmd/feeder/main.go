package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/ws"
)

// feeder drives the engine's market data endpoint with a deterministic
// price walk: each symbol ticks up by step until it has risen amplitude
// steps, then walks back down. Prices are computed in decimal so the walk
// reproduces exactly across runs.

type tick struct {
	TimestampMs int64   `json:"timestamp_ms"`
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	Volume      float64 `json:"volume"`
}

func main() {
	endpoint := flag.String("endpoint", "ws://127.0.0.1:5555/", "Engine market data endpoint")
	symbolList := flag.String("symbols", "AAPL", "Comma-separated symbols")
	ticks := flag.Int("ticks", 100, "Number of ticks to send (0 = unlimited)")
	interval := flag.Duration("interval", 100*time.Millisecond, "Delay between ticks")
	basePrice := flag.String("base-price", "150.25", "Starting price")
	step := flag.String("step", "0.05", "Price increment per tick")
	amplitude := flag.Int("amplitude", 20, "Steps before the walk turns around")
	volume := flag.Float64("volume", 100, "Tick volume")
	flag.Parse()

	symbols := strings.Split(*symbolList, ",")
	base, err := decimal.NewFromString(*basePrice)
	if err != nil {
		logs.Errorf("invalid base price: %+v", err)
		os.Exit(1)
	}
	stepSize, err := decimal.NewFromString(*step)
	if err != nil {
		logs.Errorf("invalid step: %+v", err)
		os.Exit(1)
	}
	if *amplitude <= 0 {
		*amplitude = 1
	}

	ctx := context.Background()
	conn := ws.New(ctx, *endpoint)
	if err := conn.Start(ctx); err != nil {
		logs.Errorf("connect %s: %+v", *endpoint, err)
		os.Exit(1)
	}
	defer conn.Close()
	logs.Infof("feeding %s, symbols=%v", *endpoint, symbols)

	price := base
	direction := int64(1)
	offset := 0
	sent := 0
	for *ticks == 0 || sent < *ticks {
		for _, symbol := range symbols {
			payload := tick{
				TimestampMs: time.Now().UnixMilli(),
				Symbol:      strings.TrimSpace(symbol),
				Price:       price.InexactFloat64(),
				Volume:      *volume,
			}
			if err := conn.WriteJSON(payload); err != nil {
				logs.Errorf("send tick: %+v", err)
				os.Exit(1)
			}
			sent++
			if *ticks != 0 && sent >= *ticks {
				break
			}
		}

		if direction > 0 {
			price = price.Add(stepSize)
		} else {
			price = price.Sub(stepSize)
		}
		offset++
		if offset >= *amplitude {
			direction = -direction
			offset = 0
		}

		time.Sleep(*interval)
	}

	logs.Infof("done, %d ticks sent", sent)
}

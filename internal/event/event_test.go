package event

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindTags(t *testing.T) {
	require.Equal(t, KindMarketData, MarketData{}.Kind())
	require.Equal(t, KindSignal, Signal{}.Kind())
	require.Equal(t, KindOrder, Order{}.Kind())
	require.Equal(t, KindExecutionReport, ExecutionReport{}.Kind())
	require.Equal(t, KindOrderUpdate, OrderUpdate{}.Kind())
	require.Equal(t, KindPositionUpdate, PositionUpdate{}.Kind())
	require.Equal(t, KindRiskViolation, RiskViolation{}.Kind())
}

func TestKindWireNames(t *testing.T) {
	require.Equal(t, "order_update", KindOrderUpdate.String())
	require.Equal(t, "position_update", KindPositionUpdate.String())
	require.Equal(t, "risk_violation", KindRiskViolation.String())
	require.Equal(t, "unknown", KindUnknown.String())
}

func TestSequencerMonotonic(t *testing.T) {
	var s Sequencer
	require.Equal(t, uint64(1), s.Next())
	require.Equal(t, uint64(2), s.Next())
}

func TestSequencerConcurrentDistinct(t *testing.T) {
	var s Sequencer
	const workers = 8
	const perWorker = 500

	results := make([][]uint64, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				results[w] = append(results[w], s.Next())
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for _, batch := range results {
		for _, seq := range batch {
			require.False(t, seen[seq])
			seen[seq] = true
		}
	}
	require.Len(t, seen, workers*perWorker)
}

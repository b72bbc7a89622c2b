package metrics

import (
	"time"

	"github.com/daybreaklabs/daybreak/pkg/storage"
	"github.com/daybreaklabs/daybreak/pkg/types"
)

// Collector refreshes the gauge metrics from stored state
type Collector struct {
	store  storage.Store
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(store storage.Store) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	challenges, err := c.store.ListChallenges()
	if err != nil {
		return
	}

	counts := map[types.ChallengeStatus]int{}
	unresolved := 0
	for _, ch := range challenges {
		counts[ch.Status]++
		if ch.UnresolvedPayment {
			unresolved++
		}
	}

	for _, status := range []types.ChallengeStatus{
		types.ChallengeStatusScheduled,
		types.ChallengeStatusActive,
		types.ChallengeStatusSuccess,
		types.ChallengeStatusFail,
		types.ChallengeStatusSettled,
	} {
		ChallengesByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
	UnresolvedSettlements.Set(float64(unresolved))
}

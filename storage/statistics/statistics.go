package statistics

import (
	"sort"
	"sync"
	"time"

	"github.com/caio/go-tdigest"
)

type StatisticsType string

const (
	Send    = StatisticsType("send")
	Recv    = StatisticsType("recv")
	Call    = StatisticsType("call")
	Storage = StatisticsType("storage")
)

var DefaultQuantiles = []float64{0.5, 0.9, 0.99}

type statistics struct {
	mu sync.Mutex

	Time      map[StatisticsType]*tdigest.TDigest
	Storage   map[string]*tdigest.TDigest
	Quantiles []float64
}

var timeStatistics = statistics{
	Time:      make(map[StatisticsType]*tdigest.TDigest),
	Storage:   make(map[string]*tdigest.TDigest),
	Quantiles: DefaultQuantiles,
}

func SetQuantiles(q []float64) {
	timeStatistics.mu.Lock()
	defer timeStatistics.mu.Unlock()
	timeStatistics.Quantiles = q
}

func GetQuantiles() []float64 {
	timeStatistics.mu.Lock()
	defer timeStatistics.mu.Unlock()
	return append([]float64(nil), timeStatistics.Quantiles...)
}

func add(m map[StatisticsType]*tdigest.TDigest, tip StatisticsType, d time.Duration) {
	if m[tip] == nil {
		m[tip], _ = tdigest.New()
	}
	_ = m[tip].Add(float64(d.Microseconds()) / 1000)
}

// RecordOperation adds the duration of one operation, in milliseconds.
func RecordOperation(tip StatisticsType, d time.Duration) {
	timeStatistics.mu.Lock()
	defer timeStatistics.mu.Unlock()
	add(timeStatistics.Time, tip, d)
}

// RecordStorageOperation records a storage engine call by operation name.
func RecordStorageOperation(op string, d time.Duration) {
	timeStatistics.mu.Lock()
	defer timeStatistics.mu.Unlock()
	if timeStatistics.Storage[op] == nil {
		timeStatistics.Storage[op], _ = tdigest.New()
	}
	_ = timeStatistics.Storage[op].Add(float64(d.Microseconds()) / 1000)
	add(timeStatistics.Time, Storage, d)
}

// GetTimeQuantile returns the q-quantile of recorded durations in
// milliseconds, or 0 if nothing was recorded.
func GetTimeQuantile(tip StatisticsType, q float64) float64 {
	timeStatistics.mu.Lock()
	defer timeStatistics.mu.Unlock()
	td := timeStatistics.Time[tip]
	if td == nil || td.Count() == 0 {
		return 0
	}
	return td.Quantile(q)
}

type Summary struct {
	Type      StatisticsType     `json:"type"`
	Count     uint64             `json:"count"`
	Quantiles map[string]float64 `json:"quantiles_ms"`
}

// Summaries reports every recorded statistics type at the configured quantiles.
func Summaries() []Summary {
	timeStatistics.mu.Lock()
	defer timeStatistics.mu.Unlock()

	ret := make([]Summary, 0, len(timeStatistics.Time))
	for tip, td := range timeStatistics.Time {
		s := Summary{
			Type:      tip,
			Count:     td.Count(),
			Quantiles: make(map[string]float64, len(timeStatistics.Quantiles)),
		}
		for _, q := range timeStatistics.Quantiles {
			s.Quantiles[formatQuantile(q)] = td.Quantile(q)
		}
		ret = append(ret, s)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Type < ret[j].Type
	})
	return ret
}

func Reset() {
	timeStatistics.mu.Lock()
	defer timeStatistics.mu.Unlock()
	timeStatistics.Time = make(map[StatisticsType]*tdigest.TDigest)
	timeStatistics.Storage = make(map[string]*tdigest.TDigest)
}

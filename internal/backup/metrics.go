package backup

import (
	"sync"
	"time"
)

// OperationKind names the operations the metrics collector tracks
type OperationKind string

const (
	OperationDump    OperationKind = "dump"
	OperationImport  OperationKind = "import"
	OperationRestore OperationKind = "restore"
)

// OperationMetrics tracks success/failure rates for one kind of operation
type OperationMetrics struct {
	Total       int64   `json:"total" yaml:"total"`
	Success     int64   `json:"success" yaml:"success"`
	Failed      int64   `json:"failed" yaml:"failed"`
	SuccessRate float64 `json:"success_rate" yaml:"success_rate"`

	AverageDuration time.Duration `json:"average_duration" yaml:"average_duration"`
	MinDuration     time.Duration `json:"min_duration" yaml:"min_duration"`
	MaxDuration     time.Duration `json:"max_duration" yaml:"max_duration"`

	LastRun *time.Time `json:"last_run,omitempty" yaml:"last_run,omitempty"`
}

// MetricsSnapshot is a copy of everything recorded since the process started
type MetricsSnapshot struct {
	StartTime   time.Time                           `json:"start_time" yaml:"start_time"`
	Operations  map[OperationKind]*OperationMetrics `json:"operations" yaml:"operations"`
	BytesDumped int64                               `json:"bytes_dumped" yaml:"bytes_dumped"`
}

// MetricsCollector records in-process operation outcomes. It is safe for
// concurrent use by request-triggered and scheduled operations.
type MetricsCollector struct {
	mu          sync.RWMutex
	startTime   time.Time
	operations  map[OperationKind]*OperationMetrics
	bytesDumped int64
	now         func() time.Time
}

// NewMetricsCollector creates an empty collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		startTime:  time.Now(),
		operations: make(map[OperationKind]*OperationMetrics),
		now:        time.Now,
	}
}

// Record adds one operation outcome
func (mc *MetricsCollector) Record(kind OperationKind, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	metrics, ok := mc.operations[kind]
	if !ok {
		metrics = &OperationMetrics{}
		mc.operations[kind] = metrics
	}

	metrics.Total++
	if success {
		metrics.Success++
	} else {
		metrics.Failed++
	}
	metrics.SuccessRate = float64(metrics.Success) / float64(metrics.Total)

	if metrics.MinDuration == 0 || duration < metrics.MinDuration {
		metrics.MinDuration = duration
	}
	if duration > metrics.MaxDuration {
		metrics.MaxDuration = duration
	}
	totalDuration := time.Duration(int64(metrics.AverageDuration)*(metrics.Total-1)) + duration
	metrics.AverageDuration = totalDuration / time.Duration(metrics.Total)

	now := mc.now()
	metrics.LastRun = &now
}

// RecordDumpSize adds the size of a finished dump file
func (mc *MetricsCollector) RecordDumpSize(bytes int64) {
	mc.mu.Lock()
	mc.bytesDumped += bytes
	mc.mu.Unlock()
}

// Snapshot returns a copy of the current metrics
func (mc *MetricsCollector) Snapshot() MetricsSnapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	snapshot := MetricsSnapshot{
		StartTime:   mc.startTime,
		Operations:  make(map[OperationKind]*OperationMetrics, len(mc.operations)),
		BytesDumped: mc.bytesDumped,
	}
	for kind, metrics := range mc.operations {
		copied := *metrics
		snapshot.Operations[kind] = &copied
	}
	return snapshot
}

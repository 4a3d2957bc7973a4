package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncExports increments the export submission counter.
	IncExports(product string, success bool)

	// ObserveBuildDuration records how long building an export graph took.
	ObserveBuildDuration(product string, duration time.Duration)

	// IncRemoteCalls increments the remote call counter.
	IncRemoteCalls(operation string, success bool)

	// ObserveRemoteDuration records remote call duration.
	ObserveRemoteDuration(operation string, duration time.Duration)

	// IncStorageOperations increments storage operation counter.
	IncStorageOperations(operation string, success bool)

	// ObserveStorageDuration records storage operation duration.
	ObserveStorageDuration(operation string, duration time.Duration)

	// IncLedgerRecords increments the ledger write counter.
	IncLedgerRecords(state string)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncExports implements MetricsCollector.
func (n *NoOpMetrics) IncExports(_ string, _ bool) {}

// ObserveBuildDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveBuildDuration(_ string, _ time.Duration) {}

// IncRemoteCalls implements MetricsCollector.
func (n *NoOpMetrics) IncRemoteCalls(_ string, _ bool) {}

// ObserveRemoteDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveRemoteDuration(_ string, _ time.Duration) {}

// IncStorageOperations implements MetricsCollector.
func (n *NoOpMetrics) IncStorageOperations(_ string, _ bool) {}

// ObserveStorageDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveStorageDuration(_ string, _ time.Duration) {}

// IncLedgerRecords implements MetricsCollector.
func (n *NoOpMetrics) IncLedgerRecords(_ string) {}

package shared

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ServiceMetrics tracks success metrics for a service, plus named counters
type ServiceMetrics struct {
	ServiceName           string           `json:"service_name"`
	TotalRequests         int64            `json:"total_requests"`
	SuccessfulRequests    int64            `json:"successful_requests"`
	FailedRequests        int64            `json:"failed_requests"`
	TotalProcessingTime   time.Duration    `json:"total_processing_time"`
	AverageProcessingTime time.Duration    `json:"average_processing_time"`
	LastUpdated           time.Time        `json:"last_updated"`
	Counters              map[string]int64 `json:"counters"`
	mutex                 sync.RWMutex
}

// NewServiceMetrics creates a new metrics tracker for a service
func NewServiceMetrics(serviceName string) *ServiceMetrics {
	return &ServiceMetrics{
		ServiceName: serviceName,
		LastUpdated: time.Now(),
		Counters:    make(map[string]int64),
	}
}

// RecordRequest records a request with its success status and processing time
func (m *ServiceMetrics) RecordRequest(success bool, processingTime time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalRequests++
	m.TotalProcessingTime += processingTime
	m.AverageProcessingTime = time.Duration(int64(m.TotalProcessingTime) / m.TotalRequests)

	if success {
		m.SuccessfulRequests++
	} else {
		m.FailedRequests++
	}
	m.LastUpdated = time.Now()
}

// IncrementCounter increments a named counter
func (m *ServiceMetrics) IncrementCounter(key string) {
	m.AddCounter(key, 1)
}

// AddCounter adds delta to a named counter
func (m *ServiceMetrics) AddCounter(key string, delta int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Counters[key] += delta
	m.LastUpdated = time.Now()
}

// Counter returns the current value of a named counter
func (m *ServiceMetrics) Counter(key string) int64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.Counters[key]
}

// successRate returns the success percentage; callers hold the lock
func (m *ServiceMetrics) successRate() float64 {
	if m.TotalRequests == 0 {
		return 0.0
	}
	return float64(m.SuccessfulRequests) / float64(m.TotalRequests) * 100.0
}

// MetricsSnapshot is a copy of ServiceMetrics safe to serialize
type MetricsSnapshot struct {
	ServiceName           string           `json:"service_name"`
	TotalRequests         int64            `json:"total_requests"`
	SuccessfulRequests    int64            `json:"successful_requests"`
	FailedRequests        int64            `json:"failed_requests"`
	SuccessRate           float64          `json:"success_rate"`
	AverageProcessingTime time.Duration    `json:"average_processing_time"`
	LastUpdated           time.Time        `json:"last_updated"`
	Counters              map[string]int64 `json:"counters"`
}

// GetSnapshot returns a thread-safe snapshot of current metrics
func (m *ServiceMetrics) GetSnapshot() MetricsSnapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	counters := make(map[string]int64, len(m.Counters))
	for k, v := range m.Counters {
		counters[k] = v
	}
	return MetricsSnapshot{
		ServiceName:           m.ServiceName,
		TotalRequests:         m.TotalRequests,
		SuccessfulRequests:    m.SuccessfulRequests,
		FailedRequests:        m.FailedRequests,
		SuccessRate:           m.successRate(),
		AverageProcessingTime: m.AverageProcessingTime,
		LastUpdated:           m.LastUpdated,
		Counters:              counters,
	}
}

// LogSummary logs a summary of current metrics
func (m *ServiceMetrics) LogSummary() {
	snapshot := m.GetSnapshot()
	logrus.WithFields(logrus.Fields{
		"service_name":        snapshot.ServiceName,
		"total_requests":      snapshot.TotalRequests,
		"successful_requests": snapshot.SuccessfulRequests,
		"failed_requests":     snapshot.FailedRequests,
		"success_rate":        snapshot.SuccessRate,
		"avg_processing_time": snapshot.AverageProcessingTime,
		"counters":            snapshot.Counters,
	}).Info("Service metrics summary")
}

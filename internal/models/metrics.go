package models

import "time"

// RequestCounter is the lifetime accepted/rejected request total.
type RequestCounter struct {
	RequestCount  int64 `json:"requestCount"`
	RejectedCount int64 `json:"rejectedCount"`
}

// MinuteMetrics compares the current and previous minute.
type MinuteMetrics struct {
	RequestsCurrentMinute  int64 `json:"requestsCurrentMinute"`
	RequestsPreviousMinute int64 `json:"requestsPreviousMinute"`
	RejectedCurrentMinute  int64 `json:"rejectedCurrentMinute"`
	RejectedPreviousMinute int64 `json:"rejectedPreviousMinute"`
}

// MetricsSnapshot is the display tuple derived on every poll. It is never
// persisted.
type MetricsSnapshot struct {
	Totals        RequestCounter `json:"totals"`
	Minute        MinuteMetrics  `json:"minute"`
	RequestsDelta int            `json:"requestsDelta"`
	RejectedDelta int            `json:"rejectedDelta"`
	TotalsOK      bool           `json:"totalsOk"`
	MinuteOK      bool           `json:"minuteOk"`
	SampledAt     time.Time      `json:"sampledAt"`
}

// ProcessMetrics describes the console process itself.
type ProcessMetrics struct {
	CPUPercent     float64   `json:"cpuPercent"`
	RSSBytes       uint64    `json:"rssBytes"`
	Goroutines     int       `json:"goroutines"`
	HostCPUPercent float64   `json:"hostCpuPercent"`
	HostMemUsed    float64   `json:"hostMemUsedPercent"`
	HealthPercent  float64   `json:"healthPercent"`
	Timestamp      time.Time `json:"timestamp"`
}

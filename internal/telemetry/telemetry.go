package telemetry

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

type HealthState string

const (
	Healthy   HealthState = "healthy"
	Degraded  HealthState = "degraded"
	Unhealthy HealthState = "unhealthy"

	degradedThreshold  = 3
	unhealthyThreshold = 5
	latencyWindowSize  = 100
)

// Lookup names recorded by the identity and posture clients.
const (
	LookupRealm      = "realm"
	LookupTenantID   = "openid_configuration"
	LookupCredential = "credential_type"
	LookupFederation = "federation_information"
	LookupDNS        = "dns"
	LookupRegistrar  = "whois"
)

type LookupStats struct {
	Name            string      `json:"name"`
	State           HealthState `json:"state"`
	TotalRequests   int64       `json:"total_requests"`
	SuccessCount    int64       `json:"success_count"`
	FailureCount    int64       `json:"failure_count"`
	ConsecFailures  int         `json:"consecutive_failures"`
	LastError       string      `json:"last_error,omitempty"`
	LastErrorTime   *time.Time  `json:"last_error_time,omitempty"`
	LastSuccessTime *time.Time  `json:"last_success_time,omitempty"`
	AvgLatencyMs    float64     `json:"avg_latency_ms"`
	P95LatencyMs    float64     `json:"p95_latency_ms"`
}

type lookup struct {
	mu             sync.Mutex
	name           string
	totalRequests  int64
	successCount   int64
	failureCount   int64
	consecFailures int
	lastError      string
	lastErrorTime  time.Time
	lastSuccess    time.Time
	latencies      []float64
	latencyIdx     int
	latencyFull    bool
}

// Registry collects per-lookup outcomes. A nil *Registry is valid and records nothing.
type Registry struct {
	mu      sync.RWMutex
	lookups map[string]*lookup
}

func NewRegistry() *Registry {
	return &Registry{
		lookups: make(map[string]*lookup),
	}
}

func (r *Registry) getOrCreate(name string) *lookup {
	r.mu.RLock()
	l, ok := r.lookups[name]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok = r.lookups[name]; ok {
		return l
	}
	l = &lookup{
		name:      name,
		latencies: make([]float64, latencyWindowSize),
	}
	r.lookups[name] = l
	return l
}

// Observe records the outcome of a lookup that started at start.
func (r *Registry) Observe(name string, start time.Time, err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.RecordFailure(name, err.Error())
		return
	}
	r.RecordSuccess(name, time.Since(start))
}

func (r *Registry) RecordSuccess(name string, latency time.Duration) {
	if r == nil {
		return
	}
	l := r.getOrCreate(name)
	l.mu.Lock()
	defer l.mu.Unlock()

	l.totalRequests++
	l.successCount++
	l.consecFailures = 0
	l.lastSuccess = time.Now()

	l.latencies[l.latencyIdx] = float64(latency.Microseconds()) / 1000.0
	l.latencyIdx++
	if l.latencyIdx >= latencyWindowSize {
		l.latencyIdx = 0
		l.latencyFull = true
	}
}

func (r *Registry) RecordFailure(name, errMsg string) {
	if r == nil {
		return
	}
	l := r.getOrCreate(name)
	l.mu.Lock()
	defer l.mu.Unlock()

	l.totalRequests++
	l.failureCount++
	l.consecFailures++
	l.lastError = errMsg
	l.lastErrorTime = time.Now()
}

func (r *Registry) GetStats(name string) LookupStats {
	if r == nil {
		return LookupStats{Name: name, State: Healthy}
	}
	l := r.getOrCreate(name)
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats()
}

// AllStats returns every recorded lookup sorted by name.
func (r *Registry) AllStats() []LookupStats {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	names := make([]string, 0, len(r.lookups))
	for name := range r.lookups {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	stats := make([]LookupStats, 0, len(names))
	for _, name := range names {
		stats = append(stats, r.GetStats(name))
	}
	return stats
}

// LogSummary writes one debug line per lookup and a warning for any that ended unhealthy.
func (r *Registry) LogSummary() {
	for _, s := range r.AllStats() {
		slog.Debug("Lookup stats",
			"lookup", s.Name,
			"state", s.State,
			"total", s.TotalRequests,
			"failures", s.FailureCount,
			"avg_latency_ms", s.AvgLatencyMs,
			"p95_latency_ms", s.P95LatencyMs,
		)
		if s.State == Unhealthy {
			slog.Warn("Lookup failing repeatedly", "lookup", s.Name, "consecutive_failures", s.ConsecFailures, "last_error", s.LastError)
		}
	}
}

func (l *lookup) stats() LookupStats {
	s := LookupStats{
		Name:           l.name,
		TotalRequests:  l.totalRequests,
		SuccessCount:   l.successCount,
		FailureCount:   l.failureCount,
		ConsecFailures: l.consecFailures,
		LastError:      l.lastError,
	}

	if !l.lastErrorTime.IsZero() {
		t := l.lastErrorTime
		s.LastErrorTime = &t
	}
	if !l.lastSuccess.IsZero() {
		t := l.lastSuccess
		s.LastSuccessTime = &t
	}

	switch {
	case l.consecFailures >= unhealthyThreshold:
		s.State = Unhealthy
	case l.consecFailures >= degradedThreshold:
		s.State = Degraded
	default:
		s.State = Healthy
	}

	count := l.latencyIdx
	if l.latencyFull {
		count = latencyWindowSize
	}
	if count > 0 {
		sorted := make([]float64, count)
		copy(sorted, l.latencies[:count])
		sort.Float64s(sorted)
		s.AvgLatencyMs = avgFloats(sorted)
		s.P95LatencyMs = sorted[int(float64(len(sorted)-1)*0.95)]
	}

	return s
}

func avgFloats(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

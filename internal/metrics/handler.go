package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON response for the metrics summary endpoint.
type Summary struct {
	Mode      string        `json:"mode"`
	Embed     httpSummary   `json:"embed"`
	API       httpSummary   `json:"api"`
	Admission admissionInfo `json:"admission"`
	RateLimit rateLimitInfo `json:"rateLimit"`
	Quota     quotaInfo     `json:"quota"`
	Retrieval retrievalInfo `json:"retrieval"`
	Collector collectorInfo `json:"collector"`
	Auth      authInfo      `json:"auth"`
	DB        dbInfo        `json:"db"`
	Server    serverInfo    `json:"server"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
	P99Latency    float64 `json:"p99Latency"`
}

type admissionInfo struct {
	Total    float64 `json:"total"`
	Admitted float64 `json:"admitted"`
	Degraded float64 `json:"degraded"`
}

type rateLimitInfo struct {
	Rejections float64 `json:"rejections"`
}

type quotaInfo struct {
	Rejections float64 `json:"rejections"`
}

type retrievalInfo struct {
	P50Duration float64 `json:"p50Duration"`
	P95Duration float64 `json:"p95Duration"`
	Errors      float64 `json:"errors"`
}

type collectorInfo struct {
	BufferSize   float64 `json:"bufferSize"`
	TotalFlushes float64 `json:"totalFlushes"`
	FlushErrors  float64 `json:"flushErrors"`
	Events       float64 `json:"events"`
}

type authInfo struct {
	Failures  float64 `json:"failures"`
	Successes float64 `json:"successes"`
}

type dbInfo struct {
	TotalConns    float64 `json:"totalConns"`
	IdleConns     float64 `json:"idleConns"`
	AcquiredConns float64 `json:"acquiredConns"`
}

type serverInfo struct {
	StartTime     float64 `json:"startTime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// Handler returns an http.HandlerFunc that serves live metrics in JSON format.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.handleLive(w)
	}
}

func (m *Metrics) handleLive(w http.ResponseWriter) {
	families, err := m.registry.Gather()
	if err != nil {
		http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
		return
	}

	fam := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		fam[f.GetName()] = f
	}

	summary := Summary{
		Mode: "live",
		Embed: httpSummary{
			TotalRequests: sumCounterWithLabel(fam["embedgate_http_requests_total"], "kind", "embed"),
			ErrorRate:     computeErrorRateWithLabel(fam["embedgate_http_requests_total"], "kind", "embed"),
			P50Latency:    histogramPercentileWithLabel(fam["embedgate_http_request_duration_seconds"], 0.50, "kind", "embed"),
			P95Latency:    histogramPercentileWithLabel(fam["embedgate_http_request_duration_seconds"], 0.95, "kind", "embed"),
			P99Latency:    histogramPercentileWithLabel(fam["embedgate_http_request_duration_seconds"], 0.99, "kind", "embed"),
		},
		API: httpSummary{
			TotalRequests: sumCounterWithLabel(fam["embedgate_http_requests_total"], "kind", "api"),
			ErrorRate:     computeErrorRateWithLabel(fam["embedgate_http_requests_total"], "kind", "api"),
			P50Latency:    histogramPercentileWithLabel(fam["embedgate_http_request_duration_seconds"], 0.50, "kind", "api"),
			P95Latency:    histogramPercentileWithLabel(fam["embedgate_http_request_duration_seconds"], 0.95, "kind", "api"),
			P99Latency:    histogramPercentileWithLabel(fam["embedgate_http_request_duration_seconds"], 0.99, "kind", "api"),
		},
		Admission: admissionInfo{
			Total:    sumCounter(fam["embedgate_embed_admissions_total"]),
			Admitted: counterWithLabel(fam["embedgate_embed_admissions_total"], "code", "valid"),
			Degraded: counterWithLabel(fam["embedgate_embed_admissions_total"], "degraded", "true"),
		},
		RateLimit: rateLimitInfo{
			Rejections: sumCounter(fam["embedgate_ratelimit_rejections_total"]),
		},
		Quota: quotaInfo{
			Rejections: counterValue(fam["embedgate_quota_rejections_total"]),
		},
		Retrieval: retrievalInfo{
			P50Duration: histogramPercentile(fam["embedgate_retrieval_duration_seconds"], 0.50),
			P95Duration: histogramPercentile(fam["embedgate_retrieval_duration_seconds"], 0.95),
			Errors:      counterValue(fam["embedgate_retrieval_errors_total"]),
		},
		Collector: collectorInfo{
			BufferSize:   gaugeValue(fam["embedgate_collector_buffer_size"]),
			TotalFlushes: sumCounter(fam["embedgate_collector_flushes_total"]),
			FlushErrors:  counterWithLabel(fam["embedgate_collector_flushes_total"], "status", "error"),
			Events:       counterValue(fam["embedgate_collector_events_total"]),
		},
		Auth: authInfo{
			Failures:  sumCounter(fam["embedgate_auth_failures_total"]),
			Successes: sumCounter(fam["embedgate_auth_successes_total"]),
		},
		DB: dbInfo{
			TotalConns:    gaugeValue(fam["embedgate_db_pool_total_conns"]),
			IdleConns:     gaugeValue(fam["embedgate_db_pool_idle_conns"]),
			AcquiredConns: gaugeValue(fam["embedgate_db_pool_acquired_conns"]),
		},
		Server: serverInfo{
			StartTime:     gaugeValue(fam["embedgate_server_start_time_seconds"]),
			UptimeSeconds: float64(time.Now().Unix()) - gaugeValue(fam["embedgate_server_start_time_seconds"]),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	_ = json.NewEncoder(w).Encode(summary)
}

// --- Prometheus metric helpers ---

func sumCounter(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetGauge() != nil {
		return ms[0].GetGauge().GetValue()
	}
	return 0
}

func counterValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetCounter() != nil {
		return ms[0].GetCounter().GetValue()
	}
	return 0
}

func counterWithLabel(f *dto.MetricFamily, labelName, labelValue string) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if hasLabel(m, labelName, labelValue) && m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

func sumCounterWithLabel(f *dto.MetricFamily, labelName, labelValue string) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if hasLabel(m, labelName, labelValue) && m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func computeErrorRateWithLabel(f *dto.MetricFamily, labelName, labelValue string) float64 {
	if f == nil {
		return 0
	}
	var total, errors float64
	for _, m := range f.GetMetric() {
		if !hasLabel(m, labelName, labelValue) || m.GetCounter() == nil {
			continue
		}
		v := m.GetCounter().GetValue()
		total += v
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "status_code" {
				code := lp.GetValue()
				if len(code) > 0 && code[0] >= '4' {
					errors += v
				}
			}
		}
	}
	if total == 0 {
		return 0
	}
	return errors / total
}

func histogramPercentileWithLabel(f *dto.MetricFamily, q float64, labelName, labelValue string) float64 {
	if f == nil {
		return 0
	}
	return percentileFromBuckets(collectBuckets(f, func(m *dto.Metric) bool {
		return hasLabel(m, labelName, labelValue)
	}), q)
}

// histogramPercentile computes a percentile from aggregated histogram buckets
// using linear interpolation.
func histogramPercentile(f *dto.MetricFamily, q float64) float64 {
	if f == nil {
		return 0
	}
	return percentileFromBuckets(collectBuckets(f, func(*dto.Metric) bool { return true }), q)
}

type bucket struct {
	upperBound      float64
	cumulativeCount uint64
}

type bucketSet struct {
	totalCount uint64
	buckets    []bucket
}

func collectBuckets(f *dto.MetricFamily, match func(*dto.Metric) bool) bucketSet {
	var totalCount uint64
	bucketMap := make(map[float64]uint64)

	for _, m := range f.GetMetric() {
		if !match(m) {
			continue
		}
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		totalCount += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			bucketMap[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}

	buckets := make([]bucket, 0, len(bucketMap))
	for ub, count := range bucketMap {
		buckets = append(buckets, bucket{upperBound: ub, cumulativeCount: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].upperBound < buckets[j].upperBound
	})

	return bucketSet{totalCount: totalCount, buckets: buckets}
}

func percentileFromBuckets(bs bucketSet, q float64) float64 {
	if bs.totalCount == 0 {
		return 0
	}

	rank := q * float64(bs.totalCount)

	var prevBound float64
	var prevCount uint64
	for _, b := range bs.buckets {
		if math.IsInf(b.upperBound, 1) {
			break
		}
		if float64(b.cumulativeCount) >= rank {
			// Linear interpolation within this bucket.
			bucketCount := b.cumulativeCount - prevCount
			if bucketCount == 0 {
				return b.upperBound
			}
			fraction := (rank - float64(prevCount)) / float64(bucketCount)
			return prevBound + fraction*(b.upperBound-prevBound)
		}
		prevBound = b.upperBound
		prevCount = b.cumulativeCount
	}

	// Fall back to the last finite bucket upper bound.
	for i := len(bs.buckets) - 1; i >= 0; i-- {
		if !math.IsInf(bs.buckets[i].upperBound, 1) {
			return bs.buckets[i].upperBound
		}
	}
	return 0
}

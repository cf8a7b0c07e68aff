package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cert_renewer"

// Metrics 续期指标，使用独立的 registry
// 方法对 nil 接收者安全，未启用时不记录
type Metrics struct {
	registry *prometheus.Registry
	textfile string

	cycles         *prometheus.CounterVec
	groups         *prometheus.CounterVec
	issued         prometheus.Counter
	lastCycle      prometheus.Gauge
	cycleDurations prometheus.Histogram
}

// New 创建指标，textfile 为空时不导出文件
func New(textfile string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		textfile: textfile,
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Number of renewal cycles by result.",
		}, []string{"result"}),
		groups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenge_groups_total",
			Help:      "Number of DNS-01 challenge groups by final state.",
		}, []string{"state"}),
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "certificates_issued_total",
			Help:      "Number of certificates issued and persisted.",
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time of the last finished renewal cycle.",
		}),
		cycleDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of renewal cycles.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}

	m.registry.MustRegister(m.cycles, m.groups, m.issued, m.lastCycle, m.cycleDurations)
	return m
}

// Registry 返回内部 registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveCycle 记录一次续期周期
func (m *Metrics) ObserveCycle(result string, finished time.Time, duration time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result).Inc()
	m.lastCycle.Set(float64(finished.Unix()))
	m.cycleDurations.Observe(duration.Seconds())
}

// ObserveGroup 记录验证记录组的结果
func (m *Metrics) ObserveGroup(state string) {
	if m == nil {
		return
	}
	m.groups.WithLabelValues(state).Inc()
}

// CertificateIssued 记录一次成功签发
func (m *Metrics) CertificateIssued() {
	if m == nil {
		return
	}
	m.issued.Inc()
}

// Flush 写入 node_exporter textfile
func (m *Metrics) Flush() error {
	if m == nil || m.textfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(m.textfile, m.registry); err != nil {
		return fmt.Errorf("写入指标文件失败: %w", err)
	}
	return nil
}

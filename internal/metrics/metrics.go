package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/fjod/mindquiz/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	HTTP5xx         = "http_5xx_total"
	ReadyCalls      = "payment_ready_calls_total"
	Approvals       = "payment_approval_total"
	Failures        = "payment_failure_total"
	Cancels         = "payment_cancel_total"
	ReferralRewards = "referral_reward_total"
	OrderSignCalls  = "order_sign_calls_total"
	RevenueTotal    = "revenue_total_krw"
	RevenueKakao    = "revenue_kakao_krw"
	RevenueNaver    = "revenue_naver_krw"
)

var counterHelp = map[string]string{
	HTTP5xx:         "Responses with a 5xx status.",
	ReadyCalls:      "Payment ready calls that passed signature verification.",
	Approvals:       "Payments approved by a provider.",
	Failures:        "Payment approvals rejected by a provider.",
	Cancels:         "Payments canceled by the buyer.",
	ReferralRewards: "Referral reward coupons issued.",
	OrderSignCalls:  "Orders signed.",
	RevenueTotal:    "Approved revenue in KRW.",
	RevenueKakao:    "Approved KakaoPay revenue in KRW.",
	RevenueNaver:    "Approved NaverPay revenue in KRW.",
}

// Metrics holds process counters in a private registry. Counters reset on
// restart; the backup gauge is read from the shared store at scrape time.
type Metrics struct {
	registry *prometheus.Registry
	counters map[string]prometheus.Counter
	shared   SharedStore
}

// MustNew registers all collectors on a fresh registry and panics on a
// registration error.
func MustNew(shared SharedStore, logger *slog.Logger) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		counters: make(map[string]prometheus.Counter, len(counterHelp)),
		shared:   shared,
	}

	for name, help := range counterHelp {
		c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
		m.registry.MustRegister(c)
		m.counters[name] = c
	}

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: BackupGauge, Help: "Unix time of the last successful backup."},
		func() float64 {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			ts, err := shared.LastBackup(ctx)
			if err != nil {
				logger.Warn("read shared metrics failed", "error", err)
				return 0
			}
			return float64(ts)
		},
	))
	return m
}

// Inc bumps a named counter. Unknown names are ignored.
func (m *Metrics) Inc(name string) {
	if c, ok := m.counters[name]; ok {
		c.Inc()
	}
}

// AddRevenue adds a positive amount to the total and to the provider's counter.
func (m *Metrics) AddRevenue(amount int64, provider domain.Provider) {
	if amount <= 0 {
		return
	}
	m.counters[RevenueTotal].Add(float64(amount))
	switch provider {
	case domain.ProviderKakao:
		m.counters[RevenueKakao].Add(float64(amount))
	case domain.ProviderNaver:
		m.counters[RevenueNaver].Add(float64(amount))
	}
}

func (m *Metrics) SetLastBackup(ctx context.Context, at time.Time) error {
	return m.shared.SetLastBackup(ctx, at.Unix())
}

// Snapshot returns every counter and gauge by name.
func (m *Metrics) Snapshot() (map[string]float64, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	out := make(map[string]float64, len(families))
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				out[mf.GetName()] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				out[mf.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}
	return out, nil
}

// Names lists every exported metric name in sorted order.
func (m *Metrics) Names() []string {
	names := make([]string, 0, len(counterHelp)+1)
	for name := range counterHelp {
		names = append(names, name)
	}
	names = append(names, BackupGauge)
	sort.Strings(names)
	return names
}

// Handler serves the Prometheus text exposition.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

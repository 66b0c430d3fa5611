package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fjod/mindquiz/internal/metrics"
)

type RouterConfig struct {
	AdminPass      string
	MetricsToken   string
	AnalyticsToken string
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig, payments *PaymentHandler, ops *OpsHandler, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger, m))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(SecurityHeaders)

	r.Get("/api/health", ops.Health)
	r.Get("/api/version", ops.Version)
	r.Post("/api/vitals", ops.Vitals)
	r.Get("/r/{id}", ops.Share)
	r.Get("/sitemap.xml", ops.Sitemap)

	r.Post("/api/order/sign", payments.SignOrder)
	r.Post("/api/payment/{provider}/ready", payments.Ready)
	r.Get("/api/payment/{provider}/approve", payments.Approve)
	r.Get("/api/coupon/issue", payments.IssueCoupon)

	r.Get("/checkout/failed", payments.CheckoutFailed)
	r.Get("/checkout/canceled", payments.CheckoutCanceled)
	r.Get("/payment/complete", payments.Complete)

	r.With(BearerAuth(cfg.MetricsToken)).Get("/api/metrics", ops.Metrics)
	r.With(BearerAuth(cfg.AnalyticsToken)).Get("/api/analytics/referrals", ops.Referrals)

	r.Route("/admin", func(r chi.Router) {
		r.Use(AdminAuth(cfg.AdminPass))
		r.Get("/logs", ops.Logs)
		r.Get("/status", ops.Status)
		r.Post("/prune", ops.Prune)
		r.Get("/files", ops.Files)
		r.Get("/file", ops.File)
		r.Post("/payment/{provider}/cancel", payments.AdminCancel)
	})

	return otelhttp.NewHandler(r, "mindquiz")
}

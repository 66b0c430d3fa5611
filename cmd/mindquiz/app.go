package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/fjod/mindquiz/domain"
	"github.com/fjod/mindquiz/internal/alerts"
	"github.com/fjod/mindquiz/internal/config"
	"github.com/fjod/mindquiz/internal/gateway"
	"github.com/fjod/mindquiz/internal/ledger"
	"github.com/fjod/mindquiz/internal/maintenance"
	"github.com/fjod/mindquiz/internal/metrics"
	"github.com/fjod/mindquiz/internal/nonce"
	"github.com/fjod/mindquiz/internal/pricing"
	"github.com/fjod/mindquiz/internal/publisher"
	"github.com/fjod/mindquiz/internal/repository"
	"github.com/fjod/mindquiz/internal/service"
	"github.com/fjod/mindquiz/internal/signer"
)

// app holds everything built from configuration. close releases it in
// reverse order of construction.
type app struct {
	store    ledger.Store
	metrics  *metrics.Metrics
	jobs     *maintenance.Jobs
	records  *repository.Records
	events   *repository.EventLog
	payments *service.PaymentService

	closers []func() error
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func openStore(cfg *config.Config) (ledger.Store, error) {
	if cfg.LedgerBackend == "sqlite" {
		return ledger.NewSQLiteStore(cfg.SQLitePath())
	}
	return ledger.NewFileStore(cfg.DataDir)
}

// newRedis returns nil when no Redis address is configured.
func newRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// newStorage builds the parts the maintenance commands need.
func newStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, *redis.Client, error) {
	a := &app{}

	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	rdb, err := newRedis(ctx, cfg)
	if err != nil {
		a.close()
		return nil, nil, err
	}

	var shared metrics.SharedStore = metrics.NewFileShared(cfg.MetricsFile())
	if rdb != nil {
		a.closers = append(a.closers, rdb.Close)
		shared = metrics.NewRedisShared(rdb)
	}
	a.metrics = metrics.MustNew(shared, logger)
	a.jobs = maintenance.NewJobs(store, cfg.ArchiveDir(), cfg.BackupDir(), a.metrics, logger)
	a.records = repository.NewRecords(store)
	return a, rdb, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a, rdb, err := newStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var nonces nonce.Store
	if rdb != nil {
		nonces = nonce.NewRedisStore(rdb)
	} else {
		fs, err := nonce.NewFileStore(cfg.NonceDir())
		if err != nil {
			a.close()
			return nil, fmt.Errorf("open nonce store: %w", err)
		}
		nonces = fs
	}

	var pub repository.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := publisher.NewKafkaPublisher(cfg.KafkaTopic, cfg.KafkaBrokers...)
		a.closers = append(a.closers, kp.Close)
		pub = kp
	}
	a.events = repository.NewEventLog(a.store, pub, logger)

	catalog, err := pricing.Load(cfg.PricingFile)
	if err != nil {
		a.close()
		return nil, err
	}

	client := gateway.NewHTTPClient(cfg.ProviderTimeout)
	gateways := gateway.NewManager(
		gateway.NewKakao(gateway.KakaoConfig{
			BaseURL:   cfg.Kakao.BaseURL,
			CID:       cfg.Kakao.CID,
			SecretKey: cfg.Kakao.SecretKey,
		}, client),
		gateway.NewNaver(gateway.NaverConfig{
			APIBaseURL:    cfg.Naver.APIBaseURL,
			ServiceDomain: cfg.Naver.ServiceDomain,
			PartnerID:     cfg.Naver.PartnerID,
			ClientID:      cfg.Naver.ClientID,
			ClientSecret:  cfg.Naver.ClientSecret,
			ChainID:       cfg.Naver.ChainID,
			CancelURL:     cfg.Naver.CancelURL,
		}, client),
	)

	a.payments = service.NewPaymentService(
		service.Config{
			SiteURL:         cfg.SiteURL,
			PaymentsEnabled: cfg.PaymentsEnabled,
			RefundReissue:   cfg.RefundReissue,
			ApprovalRedirect: map[domain.Provider]string{
				domain.ProviderKakao: cfg.Kakao.ApprovalRedirect,
				domain.ProviderNaver: cfg.Naver.ApprovalRedirect,
			},
		},
		signer.New(cfg.OrderSecret, cfg.OrderSignTTL, nonces, logger),
		repository.NewCouponLedger(a.store),
		repository.NewOrderLedger(a.store),
		a.events,
		catalog,
		gateways,
		a.metrics,
		alerts.NewSlack(cfg.SlackWebhookURL, client, logger),
		logger,
	)
	return a, nil
}

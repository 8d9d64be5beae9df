package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/vrfmint/internal/api"
	"github.com/punchamoorthee/vrfmint/internal/config"
	"github.com/punchamoorthee/vrfmint/internal/event"
	"github.com/punchamoorthee/vrfmint/internal/oracle"
	"github.com/punchamoorthee/vrfmint/internal/service"
	"github.com/punchamoorthee/vrfmint/internal/store"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}
	log := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatalf("Unable to open store: %v", err)
	}
	defer st.Close()

	fee, err := cfg.Fee()
	if err != nil {
		log.Fatal(err)
	}
	catalog, baseURI, err := cfg.Catalog()
	if err != nil {
		log.Fatal(err)
	}

	// Initialize Layers
	feed := event.NewFeed(prometheus.DefaultRegisterer, log)
	coord, err := oracle.NewLocalCoordinator(oracle.LocalConfig{
		Delay:       cfg.OracleDelay,
		NumWords:    cfg.OracleNumWords,
		Seed:        []byte(cfg.OracleSeed),
		AutoFulfill: cfg.OracleAutoFulfill,
	}, log)
	if err != nil {
		log.Fatal(err)
	}
	svc, err := service.NewMintService(st, coord, feed, service.Options{
		MintFee:       fee,
		Catalog:       catalog,
		BaseURI:       baseURI,
		BasicTokenURI: cfg.BasicTokenURI,
	}, log)
	if err != nil {
		log.Fatal(err)
	}
	coord.SetConsumer(svc)
	coord.Start(ctx, feed)
	if err := svc.SyncMetrics(ctx); err != nil {
		log.WithError(err).Warn("Unable to sync metrics from store")
	}

	handler := api.NewHandler(svc, feed, api.Options{
		MintRateLimit: cfg.MintRateLimit,
		MintRateBurst: cfg.MintRateBurst,
		CallbackToken: cfg.CallbackToken,
	}, log)

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	handler.Register(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// stopping the feed first closes open event streams
		feed.Stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Server shutdown")
		}
	}()

	log.WithFields(logrus.Fields{
		"port":         cfg.Port,
		"environment":  cfg.Env,
		"mint_fee":     fee.String(),
		"catalog_size": len(catalog),
		"auto_fulfill": cfg.OracleAutoFulfill,
	}).Info("Server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	coord.Wait()
	log.Info("Server stopped")
}

// openStore uses Postgres when DB_SOURCE is set and falls back to memory.
func openStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (store.Store, error) {
	if cfg.DBSource == "" {
		log.Warn("DB_SOURCE not set, using in-memory store")
		return store.NewMemoryStore(), nil
	}
	pg, err := store.NewPostgresStore(ctx, cfg.DBSource)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	return pg, nil
}

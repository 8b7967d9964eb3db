package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/fastprodman/transfersaga/internal/api"
	"github.com/fastprodman/transfersaga/internal/events"
	"github.com/fastprodman/transfersaga/internal/infra/alerting"
	"github.com/fastprodman/transfersaga/internal/infra/logging"
	"github.com/fastprodman/transfersaga/internal/infra/pgutils"
	"github.com/fastprodman/transfersaga/internal/infra/rabbit"
	"github.com/fastprodman/transfersaga/internal/services/ledger"
	"github.com/fastprodman/transfersaga/internal/services/saga"
	"github.com/fastprodman/transfersaga/pkg/envconf"
	"github.com/fastprodman/transfersaga/pkg/shutdownqueue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v\n", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

//nolint:funlen
func run(ctx context.Context) (retErr error) {
	cfg := new(apiConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logging.SetupJSON(cfg.LogLevel, "transfersaga-api")

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := shutdownqueue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	db, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	shutdownqueue.AddNamed("postgres", func(context.Context) error { return db.Close() })

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	shutdownqueue.AddNamed("redis", func(context.Context) error { return rdb.Close() })

	err = rdb.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	conn, err := rabbit.Dial(cfg.AMQP.URL)
	if err != nil {
		return err
	}

	shutdownqueue.AddNamed("amqp", func(context.Context) error { return conn.Close() })

	publisher, err := rabbit.NewPublisher(func() (rabbit.ConfirmChannel, error) {
		return conn.Channel()
	}, cfg.AMQP.Exchange)
	if err != nil {
		return err
	}

	shutdownqueue.AddNamed("amqp publisher", func(context.Context) error { return publisher.Close() })

	alerter := alerting.Fanout{
		alerting.Log{},
		alerting.NewRedis(rdb, cfg.Redis.AlertKey),
	}

	// --- Components ---
	ldg := ledger.New(db)
	coord := saga.New(db, publisher, alerter)
	reaper := saga.NewReaper(coord, cfg.Reaper)

	ledgerRouter := events.NewRouter()
	ledger.NewHandler(ldg, publisher).Register(ledgerRouter)

	outcomeRouter := events.NewRouter()
	coord.Register(outcomeRouter)

	topoCh, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open topology channel: %w", err)
	}

	err = rabbit.DeclareQueue(topoCh, cfg.AMQP.Exchange, rabbit.LedgerQueue, ledgerRouter.Kinds(), cfg.AMQP.MaxDeliveries)
	if err != nil {
		return err
	}

	err = rabbit.DeclareQueue(topoCh, cfg.AMQP.Exchange, rabbit.OutcomesQueue, outcomeRouter.Kinds(), cfg.AMQP.MaxDeliveries)
	if err != nil {
		return err
	}

	_ = topoCh.Close()

	ledgerCh, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open ledger channel: %w", err)
	}

	outcomeCh, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open outcome channel: %w", err)
	}

	srv := api.NewServer(cfg.Port, api.NewHandler(ldg, coord))

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return rabbit.NewConsumer(ledgerCh, rabbit.LedgerQueue, ledgerRouter, cfg.AMQP.Prefetch, cfg.AMQP.MaxDeliveries).Run(gctx)
	})

	g.Go(func() error {
		return rabbit.NewConsumer(outcomeCh, rabbit.OutcomesQueue, outcomeRouter, cfg.AMQP.Prefetch, cfg.AMQP.MaxDeliveries).Run(gctx)
	})

	g.Go(func() error {
		return reaper.Run(gctx)
	})

	g.Go(func() error {
		serr := srv.ListenAndServe()
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		slog.Info("Shut down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("API started", "port", cfg.Port, "exchange", cfg.AMQP.Exchange)

	return g.Wait()
}

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hugolhafner/go-spout/kafka"
	"github.com/hugolhafner/go-spout/message"
	"github.com/hugolhafner/go-spout/metrics"
	spoutotel "github.com/hugolhafner/go-spout/otel"
	"github.com/hugolhafner/go-spout/plugins/zaplogger"
	"github.com/hugolhafner/go-spout/serde"
	"github.com/hugolhafner/go-spout/spout"
	"github.com/hugolhafner/go-spout/translator"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

type result struct {
	id message.ID
	ok bool
}

func main() {
	configPath := flag.String("config", "spout.yaml", "path to the YAML configuration")
	metricsAddr := flag.String("metrics", ":9102", "address serving /metrics, empty to disable")
	format := flag.String("format", "raw", "value format: raw or json")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	zl, err := newZap(*debug)
	if err != nil {
		panic(err)
	}
	defer zl.Sync() //nolint:errcheck
	log := zaplogger.New(zl)

	cfg, err := spout.LoadConfig(*configPath)
	if err != nil {
		zl.Fatal("Invalid configuration", zap.Error(err))
	}

	tel, err := spoutotel.NewTelemetry(otel.GetTracerProvider(), otel.GetMeterProvider(), otel.GetTextMapPropagator())
	if err != nil {
		zl.Fatal("Failed to create telemetry", zap.Error(err))
	}

	var tr translator.Translator = translator.Default{}
	if *format == "json" {
		tr = translator.Serde(serde.String(), serde.JSON[map[string]any](), translator.SkipTombstones())
	}
	opts := []spout.Option{spout.WithLogger(log), spout.WithTelemetry(tel), spout.WithTranslator(tr)}

	s, err := spout.New(kafka.NewKgoSourceFactory(kafka.WithLogger(log)), cfg, opts...)
	if err != nil {
		zl.Fatal("Failed to create spout", zap.Error(err))
	}

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewCollector(s.Stats, prometheus.Labels{"group": cfg.ConsumerGroupID}))
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler(reg))
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zl.Error("Metrics server stopped", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// tuples are processed off the owning goroutine and reported back here
	work := make(chan message.ID, 1024)
	results := make(chan result, 1024)
	go process(zl, work, results)

	collector := spout.CollectorFunc(
		func(stream string, values []any, id message.ID) {
			zl.Info("Tuple", zap.String("stream", stream), zap.Stringer("id", id), zap.Any("values", values))
			select {
			case work <- id:
			default:
				// Emit must not block; replay later
				s.Fail(id)
			}
		},
	)

	if err := s.Open(collector); err != nil {
		zl.Fatal("Failed to open spout", zap.Error(err))
	}
	if err := s.Activate(ctx); err != nil {
		zl.Fatal("Failed to activate spout", zap.Error(err))
	}

	run(ctx, s, results, zl)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Close(closeCtx); err != nil {
		zl.Error("Close failed", zap.Error(err))
	}
	close(work)
	zl.Info("Spout stopped", zap.String("state", s.String()))
}

func run(ctx context.Context, s *spout.Spout, results <-chan result, zl *zap.Logger) {
	for {
		for drained := false; !drained; {
			select {
			case r := <-results:
				if r.ok {
					s.Ack(r.id)
				} else {
					s.Fail(r.id)
				}
			default:
				drained = true
			}
		}

		if err := s.NextTuple(ctx); err != nil {
			if errors.Is(err, kafka.ErrInterrupted) || ctx.Err() != nil {
				return
			}
			zl.Error("NextTuple failed", zap.Error(err))
			return
		}
	}
}

func process(zl *zap.Logger, work <-chan message.ID, results chan<- result) {
	for id := range work {
		zl.Debug("Processed", zap.Stringer("id", id))
		results <- result{id: id, ok: true}
	}
}

func newZap(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

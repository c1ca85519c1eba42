package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"guard-patrol-logistics-system/shared/config"
	"guard-patrol-logistics-system/shared/events"
	"guard-patrol-logistics-system/shared/influxx"
	"guard-patrol-logistics-system/shared/logx"
	"guard-patrol-logistics-system/shared/metricsx"
	"guard-patrol-logistics-system/shared/mqx"
	"guard-patrol-logistics-system/shared/observability"
)

func main() {
	cfg, problems := config.Load("patrol-telemetry-consumer", 8082)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)

	metricsx.Register()

	if len(cfg.KafkaBrokers) == 0 {
		problems = append(problems, config.Problem{Field: "KAFKA_BROKERS", Message: "KAFKA_BROKERS is required"})
	}
	if cfg.KafkaGroupID == "" {
		problems = append(problems, config.Problem{Field: "KAFKA_CONSUMER_GROUP", Message: "KAFKA_CONSUMER_GROUP is required"})
	}
	if cfg.InfluxURL == "" {
		problems = append(problems, config.Problem{Field: "INFLUX_URL", Message: "INFLUX_URL is required"})
	}
	if len(problems) > 0 {
		logger.Error(context.Background(), "config_invalid", "invalid config",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.Any("problems", problems),
		)
		os.Exit(1)
	}

	if cfg.OtelEnabled {
		if shutdown, err := observability.InitTracer(context.Background(), observability.TracerConfig{
			ServiceName: cfg.ServiceName,
			Env:         cfg.Env,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		}); err == nil {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	influx, err := influxx.New(cfg)
	if err != nil {
		logger.Error(context.Background(), "influx_init_failed", "influx init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer influx.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	topics := []string{events.TopicPatrolSessions, events.TopicStockMovements, events.TopicStockAlerts}
	var wg sync.WaitGroup
	for _, topic := range topics {
		reader, err := mqx.NewConsumer(cfg, topic, cfg.KafkaGroupID)
		if err != nil {
			logger.Error(context.Background(), "kafka_init_failed", "kafka reader init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("topic", topic),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		wg.Add(1)
		go func(topic string, reader *kafka.Reader) {
			defer wg.Done()
			defer reader.Close()
			consumeTopic(ctx, logger, cfg, reader, topic, influx)
		}(topic, reader)
	}

	logger.Info(ctx, "consumer_start", "patrol telemetry consumer started",
		slog.Any("topics", topics),
		slog.String("group", cfg.KafkaGroupID),
	)
	wg.Wait()
	logger.Info(context.Background(), "consumer_stop", "patrol telemetry consumer stopped")
}

func consumeTopic(ctx context.Context, logger logx.Logger, cfg config.Config, reader *kafka.Reader, topic string, influx *influxx.Client) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error(ctx, "kafka_fetch_failed", "failed to fetch message",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("topic", topic),
				slog.String("error", err.Error()),
			)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		spanCtx, span := otel.Tracer("mqx").Start(ctx, "kafka.consume")
		span.SetAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", topic),
		)
		if err := handleEvent(spanCtx, influx, topic, msg.Value); err != nil {
			span.End()
			metricsx.IncInfluxWriteFailure()
			logger.Error(ctx, "event_handle_failed", "failed to handle event",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("topic", topic),
				slog.String("error", err.Error()),
			)
			continue
		}
		span.End()
		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Error(ctx, "kafka_commit_failed", "failed to commit message",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("topic", topic),
				slog.String("error", err.Error()),
			)
		}
		stats := reader.Stats()
		metricsx.SetKafkaLag(stats.Topic, cfg.KafkaGroupID, stats.Lag)
	}
}

// handleEvent flattens an event envelope into an influx point. Tags
// carry the identity dimensions, numeric payload fields become point
// fields so patrol and stock activity can be graphed over time.
func handleEvent(ctx context.Context, influx *influxx.Client, topic string, raw []byte) error {
	var envelope events.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return err
	}
	if envelope.EventID == uuid.Nil || envelope.AggregateID == uuid.Nil {
		return errors.New("missing event_id/aggregate_id")
	}

	var payload map[string]any
	if len(envelope.Payload) > 0 {
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return err
		}
	}

	measurement := "stock_activity"
	if topic == events.TopicPatrolSessions {
		measurement = "patrol_activity"
	}
	tags := map[string]string{
		"event_type":     envelope.EventType,
		"aggregate_type": envelope.AggregateType,
		"aggregate_id":   envelope.AggregateID.String(),
	}
	for _, key := range []string{"guard_id", "post_id", "item_id"} {
		if v, ok := payload[key].(string); ok && v != "" {
			tags[key] = v
		}
	}

	fields := map[string]any{"count": int64(1)}
	for key, v := range payload {
		if n, ok := v.(float64); ok {
			fields[key] = n
		}
	}

	ts := envelope.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return influx.WritePoint(ctx, measurement, tags, fields, ts)
}

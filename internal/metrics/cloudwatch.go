// Package metrics publishes reservation outcomes and latencies to CloudWatch.
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/cloudwatch/cloudwatchiface"
)

const (
	// DefaultNamespace groups every metric emitted by the service.
	DefaultNamespace = "SlotReservations"

	operationsMetric = "ReservationOperations"
	latencyMetric    = "ReservationLatencyMs"

	// maxBatch is the number of datums sent per PutMetricData call.
	maxBatch      = 20
	queueCapacity = 512
)

// Config configures a CloudWatch recorder.
type Config struct {
	Namespace     string
	Region        string
	FlushInterval time.Duration
}

// CloudWatch buffers operation metrics and sends them in batches.
type CloudWatch struct {
	client    cloudwatchiface.CloudWatchAPI
	namespace string
	interval  time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	pending []*cloudwatch.MetricDatum
	dropped int
}

// NewCloudWatch builds a recorder backed by a client from the default AWS
// credential chain.
func NewCloudWatch(cfg Config, logger *slog.Logger) (*CloudWatch, error) {
	awsCfg := aws.NewConfig()
	if cfg.Region != "" {
		awsCfg = awsCfg.WithRegion(cfg.Region)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, err
	}
	return NewCloudWatchWithClient(cloudwatch.New(sess), cfg, logger), nil
}

// NewCloudWatchWithClient builds a recorder around an existing client.
func NewCloudWatchWithClient(client cloudwatchiface.CloudWatchAPI, cfg Config, logger *slog.Logger) *CloudWatch {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatch{
		client:    client,
		namespace: cfg.Namespace,
		interval:  cfg.FlushInterval,
		logger:    logger.With("component", "metrics"),
	}
}

// RecordOperation queues a count and a latency datum for the operation.
func (c *CloudWatch) RecordOperation(_ context.Context, operation, outcome string, elapsed time.Duration) {
	now := time.Now()
	dimensions := []*cloudwatch.Dimension{
		{Name: aws.String("Operation"), Value: aws.String(operation)},
		{Name: aws.String("Outcome"), Value: aws.String(outcome)},
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending)+2 > queueCapacity {
		c.dropped += 2
		return
	}
	c.pending = append(c.pending,
		&cloudwatch.MetricDatum{
			MetricName: aws.String(operationsMetric),
			Dimensions: dimensions,
			Timestamp:  aws.Time(now),
			Value:      aws.Float64(1),
			Unit:       aws.String(cloudwatch.StandardUnitCount),
		},
		&cloudwatch.MetricDatum{
			MetricName: aws.String(latencyMetric),
			Dimensions: dimensions,
			Timestamp:  aws.Time(now),
			Value:      aws.Float64(float64(elapsed) / float64(time.Millisecond)),
			Unit:       aws.String(cloudwatch.StandardUnitMilliseconds),
		},
	)
}

// Flush sends every queued datum. Batches that fail are logged and dropped.
func (c *CloudWatch) Flush(ctx context.Context) error {
	c.mu.Lock()
	pending := c.pending
	dropped := c.dropped
	c.pending = nil
	c.dropped = 0
	c.mu.Unlock()

	if dropped > 0 {
		c.logger.WarnContext(ctx, "metric queue full, datums dropped", "dropped", dropped)
	}

	var firstErr error
	for start := 0; start < len(pending); start += maxBatch {
		end := min(start+maxBatch, len(pending))
		_, err := c.client.PutMetricDataWithContext(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(c.namespace),
			MetricData: pending[start:end],
		})
		if err != nil {
			c.logger.ErrorContext(ctx, "CloudWatch metric publish failed", "error", err, "datums", end-start)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Run flushes on every interval until ctx is done, then flushes once more.
func (c *CloudWatch) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.Flush(ctx)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			_ = c.Flush(final)
			cancel()
			return
		}
	}
}

// Nop discards every measurement.
type Nop struct{}

// RecordOperation implements the recorder contract.
func (Nop) RecordOperation(context.Context, string, string, time.Duration) {}

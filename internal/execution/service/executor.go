package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"robopay/internal/execution/repository"
	"robopay/pkg/client"
	"robopay/pkg/events"
	"robopay/pkg/logger"
	"robopay/pkg/middleware"
	"robopay/pkg/model"
	"robopay/pkg/x402"
)

const meterName = "robopay/internal/execution"

// Task is one paid request forwarded to a robot.
type Task struct {
	Robot     *model.Robot
	UserID    string
	SessionID string
	Payload   map[string]any
}

type Result struct {
	ExecutionID string
	Success     bool
	Data        any
	Error       string
	Elapsed     time.Duration
}

type Executor interface {
	Execute(ctx context.Context, task Task) Result
}

type executor struct {
	repo      repository.ExecutionRepository
	http      *client.HttpClient
	publisher events.Publisher
	log       *logger.Logger
	now       func() time.Time

	executions metric.Int64Counter
	duration   metric.Float64Histogram
}

type Option func(*executor)

func WithClock(now func() time.Time) Option {
	return func(e *executor) {
		e.now = now
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *executor) {
		e.initInstruments(mp)
	}
}

func NewExecutor(repo repository.ExecutionRepository, timeout time.Duration, publisher events.Publisher, log *logger.Logger, opts ...Option) Executor {
	e := &executor{
		repo:      repo,
		http:      client.NewHttpClient("", timeout),
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
	e.initInstruments(otel.GetMeterProvider())

	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *executor) initInstruments(mp metric.MeterProvider) {
	meter := mp.Meter(meterName)

	var err error
	e.executions, err = meter.Int64Counter("robopay.executions",
		metric.WithDescription("Robot task executions by robot and status"))
	if err != nil {
		e.log.Warn("Failed to create executions counter", "error", err)
	}

	e.duration, err = meter.Float64Histogram("robopay.execution.duration",
		metric.WithDescription("Robot task response time"),
		metric.WithUnit("s"))
	if err != nil {
		e.log.Warn("Failed to create execution duration histogram", "error", err)
	}
}

// Execute forwards the payload to the robot endpoint. It never fails: every
// problem, including a request that could not be built, is a failed trial
// reported in the Result and counted in the robot's metrics.
func (e *executor) Execute(ctx context.Context, task Task) Result {
	result := Result{ExecutionID: uuid.NewString()}

	headers := map[string]string{}
	if task.SessionID != "" {
		headers[x402.HeaderSessionID] = task.SessionID
	}

	start := e.now()
	resp, err := e.http.POST(ctx, task.Robot.Endpoint, task.Payload, headers)
	result.Elapsed = e.now().Sub(start)

	switch {
	case err != nil:
		result.Error = fmt.Sprintf("robot request failed: %v", err)
	case !resp.IsSuccess():
		result.Error = fmt.Sprintf("robot returned HTTP %d", resp.StatusCode)
	default:
		var data any
		if err := json.Unmarshal(resp.Body, &data); err != nil {
			result.Error = fmt.Sprintf("robot returned an invalid JSON body: %v", err)
		} else {
			result.Success = true
			result.Data = data
		}
	}

	e.record(ctx, task, result)
	return result
}

func (e *executor) record(ctx context.Context, task Task, result Result) {
	status := model.ExecutionStatusError
	if result.Success {
		status = model.ExecutionStatusSuccess
	}

	rec := &model.ExecutionRecord{
		ID:           result.ExecutionID,
		RobotID:      task.Robot.ID,
		UserID:       task.UserID,
		SessionID:    task.SessionID,
		Status:       status,
		ResponseTime: result.Elapsed.Seconds(),
		ErrorMessage: result.Error,
		ExecutedAt:   e.now().UTC(),
	}
	if svc, ok := task.Payload["service"].(string); ok {
		rec.Service = svc
	}

	log := e.log.With("robot_id", task.Robot.ID, "execution_id", rec.ID, "status", status)

	// Metrics must land even if the caller has gone away.
	storeCtx := context.WithoutCancel(ctx)
	if metrics, err := e.repo.Record(storeCtx, rec, task.Robot.Price); err != nil {
		log.Error("Failed to record execution metrics", "error", err)
	} else {
		log.Info("Execution recorded",
			"response_time", rec.ResponseTime,
			"execution_count", metrics.ExecutionCount,
			"success_rate", metrics.SuccessRate,
		)
	}

	attrs := metric.WithAttributes(
		attribute.String("robot_id", task.Robot.ID),
		attribute.String("status", status),
	)
	if e.executions != nil {
		e.executions.Add(ctx, 1, attrs)
	}
	if e.duration != nil {
		e.duration.Record(ctx, rec.ResponseTime, attrs)
	}

	e.publisher.Publish(ctx, events.Event{
		Type:          events.TypeExecutionCompleted,
		Key:           task.Robot.ID,
		CorrelationID: middleware.RequestIDFromContext(ctx),
		Data: events.ExecutionCompleted{
			ExecutionID:  rec.ID,
			RobotID:      rec.RobotID,
			UserID:       rec.UserID,
			SessionID:    rec.SessionID,
			Status:       rec.Status,
			ResponseTime: rec.ResponseTime,
		},
	})
}

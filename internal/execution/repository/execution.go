package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	executionerrors "robopay/internal/execution/errors"
	mongotx "robopay/pkg/db/mongo"
	"robopay/pkg/model"
	"robopay/pkg/money"
	"robopay/pkg/retry"
)

const (
	CollectionName      = "Executions"
	RobotCollectionName = "Robots"
)

var concurrentUpdatePolicy = retry.Policy{Attempts: 3, Delay: 10 * time.Millisecond}

type ExecutionRepository interface {
	// Record appends the execution and folds it into the robot's metrics
	// atomically. It returns the metrics after the update. When the metrics
	// cannot be updated the execution is still appended and the error is
	// returned.
	Record(ctx context.Context, rec *model.ExecutionRecord, price money.Amount) (*model.ResourceMetrics, error)
}

type mongoExecutionRepository struct {
	executions   *mongo.Collection
	robots       *mongo.Collection
	txManager    mongotx.TransactionManager
	writeTimeout time.Duration
}

func NewMongoExecutionRepository(client *mongo.Client, databaseName string, writeTimeout time.Duration) ExecutionRepository {
	db := client.Database(databaseName)
	return &mongoExecutionRepository{
		executions:   db.Collection(CollectionName),
		robots:       db.Collection(RobotCollectionName),
		txManager:    mongotx.NewTransactionManager(client),
		writeTimeout: writeTimeout,
	}
}

func (r *mongoExecutionRepository) Record(ctx context.Context, rec *model.ExecutionRecord, price money.Amount) (*model.ResourceMetrics, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	metrics, err := retry.Do(ctx, concurrentUpdatePolicy, func(ctx context.Context, attempt int) (*model.ResourceMetrics, error) {
		var updated model.ResourceMetrics
		err := r.txManager.ExecuteTransaction(ctx, func(sc mongo.SessionContext) error {
			next, err := r.applyMetrics(sc, rec, price)
			if err != nil {
				return err
			}
			if _, err := r.executions.InsertOne(sc, rec); err != nil {
				return fmt.Errorf("failed to insert execution record: %w", err)
			}
			updated = next
			return nil
		})
		if err != nil {
			if errors.Is(err, executionerrors.ErrConcurrentUpdate) {
				return nil, err
			}
			return nil, retry.Permanent(err)
		}
		return &updated, nil
	})
	if err == nil {
		return metrics, nil
	}

	// The execution log is append-only: keep the record even when the
	// robot's counters could not take it.
	if errors.Is(err, executionerrors.ErrConcurrentUpdate) || errors.Is(err, executionerrors.ErrRobotNotFound) {
		if _, insertErr := r.executions.InsertOne(ctx, rec); insertErr != nil {
			return nil, fmt.Errorf("%w; failed to insert execution record: %v", err, insertErr)
		}
	}
	return nil, err
}

// applyMetrics is a compare-and-set on execution_count: the update only
// lands if no other execution was folded in since the read.
func (r *mongoExecutionRepository) applyMetrics(ctx context.Context, rec *model.ExecutionRecord, price money.Amount) (model.ResourceMetrics, error) {
	var current struct {
		model.ResourceMetrics `bson:",inline"`
	}

	opts := options.FindOne().SetProjection(bson.M{
		"execution_count":      1,
		"avg_response_time":    1,
		"success_rate":         1,
		"total_revenue_micros": 1,
	})
	if err := r.robots.FindOne(ctx, mongotx.IDFilter(rec.RobotID), opts).Decode(&current); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.ResourceMetrics{}, executionerrors.ErrRobotNotFound
		}
		return model.ResourceMetrics{}, fmt.Errorf("failed to read robot metrics: %w", err)
	}

	next := current.Record(rec.Status == model.ExecutionStatusSuccess, rec.ResponseTime, price)

	filter := mongotx.IDFilter(rec.RobotID)
	if current.ExecutionCount == 0 {
		filter["execution_count"] = bson.M{"$in": bson.A{0, nil}}
	} else {
		filter["execution_count"] = current.ExecutionCount
	}

	update := bson.M{"$set": bson.M{
		"execution_count":      next.ExecutionCount,
		"avg_response_time":    next.AvgResponseTime,
		"success_rate":         next.SuccessRate,
		"total_revenue_micros": next.TotalRevenue,
	}}

	result, err := r.robots.UpdateOne(ctx, filter, update)
	if err != nil {
		return model.ResourceMetrics{}, fmt.Errorf("failed to update robot metrics: %w", err)
	}
	if result.MatchedCount == 0 {
		return model.ResourceMetrics{}, executionerrors.ErrConcurrentUpdate
	}

	return next, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	robotserrors "robopay/internal/robots/errors"
	mongotx "robopay/pkg/db/mongo"
	"robopay/pkg/model"
)

const (
	CollectionName = "Robots"
)

// RobotRepository is read-only: robots are managed by the catalog service.
type RobotRepository interface {
	FindByID(ctx context.Context, id string) (*model.Robot, error)
}

type mongoRobotRepository struct {
	collection  *mongo.Collection
	readTimeout time.Duration
}

func NewMongoRobotRepository(db *mongo.Database, readTimeout time.Duration) RobotRepository {
	return &mongoRobotRepository{
		collection:  db.Collection(CollectionName),
		readTimeout: readTimeout,
	}
}

func (r *mongoRobotRepository) FindByID(ctx context.Context, id string) (*model.Robot, error) {
	if id == "" {
		return nil, robotserrors.ErrInvalidID
	}

	ctx, cancel := mongotx.WithTimeout(ctx, r.readTimeout)
	defer cancel()

	var robot model.Robot
	if err := r.collection.FindOne(ctx, mongotx.IDFilter(id)).Decode(&robot); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, robotserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find robot: %w", err)
	}

	return &robot, nil
}

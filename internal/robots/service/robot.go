package service

import (
	"context"
	"errors"

	lockrepository "robopay/internal/locks/repository"
	robotserrors "robopay/internal/robots/errors"
	"robopay/internal/robots/repository"
	"robopay/pkg/config"
	apperrors "robopay/pkg/errors"
	"robopay/pkg/model"
	"robopay/pkg/money"
)

const (
	AvailabilityAvailable = "available"
	AvailabilityBusy      = "busy"
)

type Availability struct {
	RobotID              string `json:"robot_id"`
	Available            bool   `json:"available"`
	Status               string `json:"status"`
	LockedByUserID       string `json:"locked_by_user_id,omitempty"`
	TimeRemainingSeconds *int64 `json:"time_remaining_seconds,omitempty"`
	TimeRemainingMinutes *int64 `json:"time_remaining_minutes,omitempty"`
}

type Metrics struct {
	RobotID         string       `json:"robot_id"`
	Name            string       `json:"name"`
	TotalExecutions int64        `json:"total_executions"`
	TotalRevenue    money.Amount `json:"total_revenue"`
	AvgResponseTime float64      `json:"avg_response_time"`
	SuccessRate     float64      `json:"success_rate"`
	Price           money.Amount `json:"price"`
	Status          string       `json:"status"`
}

type RobotService interface {
	GetByID(ctx context.Context, id string) (*model.Robot, error)
	Availability(ctx context.Context, id string) (*Availability, error)
	Metrics(ctx context.Context, id, callerID string) (*Metrics, error)
}

type robotService struct {
	repo  repository.RobotRepository
	locks lockrepository.LockRepository
	cfg   *config.Config
}

func NewRobotService(
	repo repository.RobotRepository,
	locks lockrepository.LockRepository,
	cfg *config.Config,
) RobotService {
	return &robotService{
		repo:  repo,
		locks: locks,
		cfg:   cfg,
	}
}

func (s *robotService) GetByID(ctx context.Context, id string) (*model.Robot, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Robot ID cannot be empty")
	}

	robot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, robotserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Robot", id)
		}
		if errors.Is(err, robotserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid robot ID format")
		}
		s.cfg.Log.Error("Failed to get robot by ID",
			"id", id,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to retrieve robot", err)
	}

	return robot, nil
}

// Availability reports whether a robot can be rented right now. An inactive
// robot is unavailable regardless of its lock and reports its own status.
func (s *robotService) Availability(ctx context.Context, id string) (*Availability, error) {
	robot, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !robot.IsActive() {
		return &Availability{RobotID: id, Available: false, Status: robot.Status}, nil
	}

	locked, err := s.locks.IsLocked(ctx, id)
	if err != nil {
		s.cfg.Log.Error("Failed to check robot lock",
			"robot_id", id,
			"error", err,
		)
		return nil, apperrors.Unavailable("Lock store")
	}
	if !locked {
		return &Availability{RobotID: id, Available: true, Status: AvailabilityAvailable}, nil
	}

	lock, err := s.locks.Info(ctx, id)
	if err != nil {
		s.cfg.Log.Error("Failed to read robot lock",
			"robot_id", id,
			"error", err,
		)
		return nil, apperrors.Unavailable("Lock store")
	}

	// The lock may lapse between the two reads.
	if lock == nil {
		return &Availability{RobotID: id, Available: true, Status: AvailabilityAvailable}, nil
	}

	seconds := int64(lock.Remaining.Seconds())
	minutes := seconds / 60
	return &Availability{
		RobotID:              id,
		Available:            false,
		Status:               AvailabilityBusy,
		LockedByUserID:       lock.Holder,
		TimeRemainingSeconds: &seconds,
		TimeRemainingMinutes: &minutes,
	}, nil
}

func (s *robotService) Metrics(ctx context.Context, id, callerID string) (*Metrics, error) {
	robot, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if robot.OwnerID != callerID {
		s.cfg.Log.Warn("Metrics requested by non-owner",
			"robot_id", id,
			"caller_id", callerID,
		)
		return nil, apperrors.Forbidden("Not authorized to view metrics for this robot")
	}

	return &Metrics{
		RobotID:         id,
		Name:            robot.Name,
		TotalExecutions: robot.ExecutionCount,
		TotalRevenue:    robot.TotalRevenue,
		AvgResponseTime: robot.AvgResponseTime,
		SuccessRate:     robot.SuccessRate,
		Price:           robot.Price,
		Status:          robot.Status,
	}, nil
}

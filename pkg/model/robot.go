package model

import (
	"time"

	"robopay/pkg/money"
)

const (
	RobotStatusActive      = "active"
	RobotStatusInactive    = "inactive"
	RobotStatusMaintenance = "maintenance"
)

type RentalPlan struct {
	Name            string       `json:"name" bson:"name"`
	DurationMinutes int          `json:"duration_minutes" bson:"duration_minutes"`
	Price           money.Amount `json:"price" bson:"price_micros"`
}

// Robot is owned by the catalog service. The gateway reads it and mutates
// only the embedded metrics.
type Robot struct {
	ID            string       `json:"id" bson:"_id"`
	OwnerID       string       `json:"owner_id" bson:"owner_id"`
	Name          string       `json:"name" bson:"name"`
	Category      string       `json:"category,omitempty" bson:"category,omitempty"`
	Description   string       `json:"description,omitempty" bson:"description,omitempty"`
	Price         money.Amount `json:"price" bson:"price_micros"`
	Currency      string       `json:"currency" bson:"currency"`
	WalletAddress string       `json:"wallet_address" bson:"wallet_address"`
	Endpoint      string       `json:"endpoint" bson:"endpoint"`
	Services      []string     `json:"services,omitempty" bson:"services,omitempty"`
	Status        string       `json:"status" bson:"status"`
	RentalPlans   []RentalPlan `json:"rental_plans,omitempty" bson:"rental_plans,omitempty"`

	ResourceMetrics `bson:",inline"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// ResourceMetrics are running statistics, updated incrementally per execution.
type ResourceMetrics struct {
	ExecutionCount  int64        `json:"execution_count" bson:"execution_count"`
	AvgResponseTime float64      `json:"avg_response_time" bson:"avg_response_time"`
	SuccessRate     float64      `json:"success_rate" bson:"success_rate"`
	TotalRevenue    money.Amount `json:"total_revenue" bson:"total_revenue_micros"`
}

func (r *Robot) IsActive() bool {
	return r.Status == RobotStatusActive
}

// PlanAt returns the rental plan at index, or false when the index is out of range.
func (r *Robot) PlanAt(index int) (RentalPlan, bool) {
	if index < 0 || index >= len(r.RentalPlans) {
		return RentalPlan{}, false
	}
	return r.RentalPlans[index], true
}

// Record folds one execution into the running metrics. elapsed is in
// seconds. Failed executions count towards the success rate only; the
// average response time and revenue follow successful ones.
func (m ResourceMetrics) Record(success bool, elapsed float64, price money.Amount) ResourceMetrics {
	oldCount := float64(m.ExecutionCount)
	newCount := oldCount + 1

	next := m
	next.ExecutionCount++

	if success {
		next.AvgResponseTime = (m.AvgResponseTime*oldCount + elapsed) / newCount
		next.SuccessRate = (oldCount*m.SuccessRate + 1) / newCount
		next.TotalRevenue = m.TotalRevenue.Add(price)
	} else {
		next.SuccessRate = (oldCount * m.SuccessRate) / newCount
	}

	return next
}

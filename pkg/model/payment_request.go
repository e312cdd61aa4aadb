package model

// ExecuteRequest is the body of a robot task call. It is stored verbatim as
// the session payload and forwarded to the robot once paid.
type ExecuteRequest struct {
	Service         string         `json:"service" validate:"required,min=1,max=100"`
	Parameters      map[string]any `json:"parameters"`
	RentalPlanIndex *int           `json:"rental_plan_index,omitempty" validate:"omitempty,min=0"`
}

// Payload renders the request as the JSON object sent to the robot.
func (r *ExecuteRequest) Payload() map[string]any {
	params := r.Parameters
	if params == nil {
		params = map[string]any{}
	}
	payload := map[string]any{
		"service":    r.Service,
		"parameters": params,
	}
	if r.RentalPlanIndex != nil {
		payload["rental_plan_index"] = *r.RentalPlanIndex
	}
	return payload
}

type VerifyRequest struct {
	SessionID   string `json:"session_id" validate:"required,uuid"`
	TxSignature string `json:"tx_signature" validate:"required,solana_signature"`
}

type VerifyResponse struct {
	Verified  bool   `json:"verified"`
	SessionID string `json:"session_id"`
	Error     string `json:"error,omitempty"`
}

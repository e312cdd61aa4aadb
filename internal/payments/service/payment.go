package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"time"

	executionservice "robopay/internal/execution/service"
	lockrepository "robopay/internal/locks/repository"
	paymenterrors "robopay/internal/payments/errors"
	"robopay/internal/payments/validator"
	robotservice "robopay/internal/robots/service"
	sessionserrors "robopay/internal/sessions/errors"
	sessionrepository "robopay/internal/sessions/repository"
	settlementerrors "robopay/internal/settlement/errors"
	settlementrepository "robopay/internal/settlement/repository"
	"robopay/internal/settlement/verifier"
	"robopay/pkg/config"
	apperrors "robopay/pkg/errors"
	"robopay/pkg/events"
	"robopay/pkg/middleware"
	"robopay/pkg/model"
	"robopay/pkg/money"
	"robopay/pkg/sanitizer"
	"robopay/pkg/x402"
)

const (
	DefaultCurrency = "USDC"

	MessageVerificationFailed = "Transaction verification failed. Please check the transaction and try again."
	MessageSessionExpired     = "Payment session expired"
	MessageRobotLocked        = "Robot is currently locked by another user"
)

// PaymentVerifier confirms that an on-chain transaction settles a session.
type PaymentVerifier interface {
	Verify(ctx context.Context, exp verifier.Expectation) verifier.Outcome
}

// ExecuteOutcome is either a payment challenge or the result of a paid task.
type ExecuteOutcome struct {
	Challenge *x402.PaymentRequired
	Result    *ExecutionView
}

type ExecutionView struct {
	Success      bool    `json:"success"`
	Data         any     `json:"data,omitempty"`
	Error        string  `json:"error,omitempty"`
	ResponseTime float64 `json:"response_time"`
	RobotID      string  `json:"robot_id"`
	SessionID    string  `json:"session_id"`
	ExecutionID  string  `json:"execution_id"`
}

type SessionView struct {
	SessionID string       `json:"session_id"`
	Status    string       `json:"status"`
	Amount    money.Amount `json:"amount"`
	Currency  string       `json:"currency"`
	RobotID   string       `json:"robot_id"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
	PaidAt    *time.Time   `json:"paid_at,omitempty"`
}

type PaymentService interface {
	Execute(ctx context.Context, robotID, payer, sessionID string, req *model.ExecuteRequest) (*ExecuteOutcome, error)
	Verify(ctx context.Context, payer string, req *model.VerifyRequest) (*model.VerifyResponse, error)
	SessionStatus(ctx context.Context, payer, sessionID string) (*SessionView, error)
	CancelSession(ctx context.Context, payer, sessionID string) error
}

type paymentService struct {
	robots      robotservice.RobotService
	sessions    sessionrepository.SessionRepository
	locks       lockrepository.LockRepository
	verifier    PaymentVerifier
	settlements settlementrepository.SettlementRepository
	executor    executionservice.Executor
	publisher   events.Publisher
	validator   *validator.PaymentValidator
	cfg         *config.Config
}

func NewPaymentService(
	robots robotservice.RobotService,
	sessions sessionrepository.SessionRepository,
	locks lockrepository.LockRepository,
	verifier PaymentVerifier,
	settlements settlementrepository.SettlementRepository,
	executor executionservice.Executor,
	publisher events.Publisher,
	validator *validator.PaymentValidator,
	cfg *config.Config,
) PaymentService {
	return &paymentService{
		robots:      robots,
		sessions:    sessions,
		locks:       locks,
		verifier:    verifier,
		settlements: settlements,
		executor:    executor,
		publisher:   publisher,
		validator:   validator,
		cfg:         cfg,
	}
}

func (s *paymentService) validate(req any) error {
	if err := s.validator.Validate(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return apperrors.Validation("Request validation failed", verrs.Details())
		}
		return apperrors.Validation("Request validation failed", map[string]any{"error": err.Error()})
	}
	return nil
}

// Execute runs a paid task when sessionID names a paid session of payer,
// otherwise it opens a new session and returns its payment challenge.
func (s *paymentService) Execute(ctx context.Context, robotID, payer, sessionID string, req *model.ExecuteRequest) (*ExecuteOutcome, error) {
	req.Service = sanitizer.SanitizeServiceName(req.Service)
	sessionID = sanitizer.SanitizeSessionID(sessionID)
	if err := s.validate(req); err != nil {
		return nil, err
	}

	robot, err := s.robots.GetByID(ctx, robotID)
	if err != nil {
		return nil, err
	}
	if !robot.IsActive() {
		return nil, apperrors.InvalidInput("Robot is " + robot.Status)
	}

	amount := robot.Price
	if req.RentalPlanIndex != nil {
		plan, ok := robot.PlanAt(*req.RentalPlanIndex)
		if !ok {
			return nil, apperrors.Validation("Invalid rental plan", map[string]any{
				"rental_plan_index": *req.RentalPlanIndex,
				"plans":             len(robot.RentalPlans),
			})
		}
		amount = plan.Price
	}

	if sessionID != "" {
		paid, err := s.paidSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if paid != nil {
			if err := checkSession(paid, payer, robot.ID); err != nil {
				return nil, translate(err)
			}
			if err := s.holdLock(ctx, robot, payer, paid); err != nil {
				return nil, err
			}
			return s.run(ctx, robot, payer, paid.ID, req), nil
		}
	}

	lock, err := s.locks.Info(ctx, robot.ID)
	if err != nil {
		s.cfg.Log.Error("Failed to read robot lock", "robot_id", robot.ID, "error", err)
		return nil, apperrors.Unavailable("Lock store")
	}
	if lock != nil && lock.Holder != payer {
		return nil, apperrors.Conflict(MessageRobotLocked)
	}

	currency := robot.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	session, err := s.sessions.Create(ctx, model.NewSession{
		UserID:    payer,
		RobotID:   robot.ID,
		Amount:    amount,
		Currency:  currency,
		Recipient: robot.WalletAddress,
		Payload:   req.Payload(),
	})
	if err != nil {
		s.cfg.Log.Error("Failed to create payment session", "robot_id", robot.ID, "user_id", payer, "error", err)
		return nil, apperrors.Unavailable("Session store")
	}

	s.cfg.Log.Info("Payment session created",
		"session_id", session.ID,
		"robot_id", robot.ID,
		"user_id", payer,
		"amount", session.Amount.String(),
	)

	s.publisher.Publish(ctx, events.Event{
		Type:          events.TypeSessionCreated,
		Key:           robot.ID,
		CorrelationID: middleware.RequestIDFromContext(ctx),
		Data: events.SessionCreated{
			SessionID: session.ID,
			UserID:    payer,
			RobotID:   robot.ID,
			Amount:    session.Amount,
			Currency:  session.Currency,
			ExpiresAt: session.ExpiresAt,
		},
	})

	challenge := x402.FromSession(session, s.cfg.SolanaNetwork, req.Service)
	return &ExecuteOutcome{Challenge: &challenge}, nil
}

// paidSession returns the session only when it exists and is paid. Unknown,
// pending and expired sessions lead to a fresh challenge.
func (s *paymentService) paidSession(ctx context.Context, id string) (*model.PaymentSession, error) {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sessionserrors.ErrNotFound) || errors.Is(err, sessionserrors.ErrInvalidID) {
			return nil, nil
		}
		s.cfg.Log.Error("Failed to read payment session", "session_id", id, "error", err)
		return nil, apperrors.Unavailable("Session store")
	}
	if !session.IsPaid() {
		return nil, nil
	}
	return session, nil
}

func checkSession(session *model.PaymentSession, payer, robotID string) error {
	if session.UserID != payer {
		return paymenterrors.ErrNotSessionOwner
	}
	if robotID != "" && session.RobotID != robotID {
		return paymenterrors.ErrSessionRobotMismatch
	}
	return nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, paymenterrors.ErrNotSessionOwner):
		return apperrors.Forbidden("Invalid session")
	case errors.Is(err, paymenterrors.ErrSessionRobotMismatch):
		return apperrors.InvalidInput("Session does not match robot")
	case errors.Is(err, paymenterrors.ErrSessionNotPending):
		return apperrors.Conflict("Only pending sessions can be cancelled")
	case errors.Is(err, sessionserrors.ErrNotFound):
		return apperrors.NotFound("Session")
	case errors.Is(err, sessionserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid session ID format")
	case errors.Is(err, settlementerrors.ErrSignatureUsed):
		return apperrors.Conflict("Transaction signature already used")
	}
	return err
}

func (s *paymentService) run(ctx context.Context, robot *model.Robot, payer, sessionID string, req *model.ExecuteRequest) *ExecuteOutcome {
	result := s.executor.Execute(ctx, executionservice.Task{
		Robot:     robot,
		UserID:    payer,
		SessionID: sessionID,
		Payload:   req.Payload(),
	})

	return &ExecuteOutcome{Result: &ExecutionView{
		Success:      result.Success,
		Data:         result.Data,
		Error:        result.Error,
		ResponseTime: result.Elapsed.Seconds(),
		RobotID:      robot.ID,
		SessionID:    sessionID,
		ExecutionID:  result.ExecutionID,
	}}
}

func (s *paymentService) Verify(ctx context.Context, payer string, req *model.VerifyRequest) (*model.VerifyResponse, error) {
	req.SessionID = sanitizer.SanitizeSessionID(req.SessionID)
	req.TxSignature = sanitizer.SanitizeSignature(req.TxSignature)
	if err := s.validate(req); err != nil {
		return nil, err
	}

	session, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, sessionserrors.ErrNotFound) || errors.Is(err, sessionserrors.ErrInvalidID) {
			return nil, translate(err)
		}
		s.cfg.Log.Error("Failed to read payment session", "session_id", req.SessionID, "error", err)
		return nil, apperrors.Unavailable("Session store")
	}

	if err := checkSession(session, payer, ""); err != nil {
		s.cfg.Log.Warn("Verification attempted by non-owner", "session_id", session.ID, "user_id", payer)
		return nil, translate(err)
	}

	if session.IsPaid() {
		return &model.VerifyResponse{Verified: true, SessionID: session.ID}, nil
	}
	if session.IsExpired() {
		return &model.VerifyResponse{Verified: false, SessionID: session.ID, Error: MessageSessionExpired}, nil
	}

	outcome := s.verifier.Verify(ctx, verifier.Expectation{
		Signature: req.TxSignature,
		Amount:    session.Amount,
		Recipient: session.Recipient,
		Memo:      session.ID,
	})
	if !outcome.Verified {
		s.cfg.Log.Warn("Payment verification failed",
			"session_id", session.ID,
			"tx_signature", req.TxSignature,
			"reason", outcome.Reason,
		)
		return &model.VerifyResponse{Verified: false, SessionID: session.ID, Error: MessageVerificationFailed}, nil
	}

	if err := s.settlements.Record(ctx, &model.Settlement{
		Signature:  req.TxSignature,
		SessionID:  session.ID,
		UserID:     payer,
		RobotID:    session.RobotID,
		Amount:     session.Amount,
		RecordedAt: time.Now().UTC(),
	}); err != nil {
		if errors.Is(err, settlementerrors.ErrSignatureUsed) {
			s.cfg.Log.Warn("Transaction signature replayed", "session_id", session.ID, "tx_signature", req.TxSignature)
			return nil, translate(err)
		}
		s.cfg.Log.Error("Failed to record settlement", "session_id", session.ID, "error", err)
		return nil, apperrors.Unavailable("Settlement store")
	}

	paid, err := s.sessions.MarkPaid(ctx, session.ID, req.TxSignature)
	if err != nil {
		if errors.Is(err, sessionserrors.ErrNotFound) {
			// The session is gone, so the signature must not stay bound to it.
			if err := s.settlements.Release(ctx, req.TxSignature, session.ID); err != nil {
				s.cfg.Log.Error("Failed to release settlement", "session_id", session.ID, "tx_signature", req.TxSignature, "error", err)
			}
			return nil, translate(sessionserrors.ErrNotFound)
		}
		s.cfg.Log.Error("Failed to mark session paid", "session_id", session.ID, "error", err)
		return nil, apperrors.Unavailable("Session store")
	}

	duration := s.lockDuration(ctx, session)
	acquired, err := s.locks.TryAcquire(ctx, session.RobotID, payer, duration)
	if err != nil {
		s.cfg.Log.Error("Failed to acquire robot lock", "robot_id", session.RobotID, "error", err)
		return nil, apperrors.Unavailable("Lock store")
	}
	if !acquired {
		s.cfg.Log.Warn("Paid session could not lock robot", "session_id", session.ID, "robot_id", session.RobotID)
		return nil, apperrors.Conflict(MessageRobotLocked)
	}

	s.cfg.Log.Info("Payment verified",
		"session_id", session.ID,
		"robot_id", session.RobotID,
		"user_id", payer,
		"lock_seconds", int64(duration.Seconds()),
	)

	paidAt := time.Now().UTC()
	if paid.PaidAt != nil {
		paidAt = *paid.PaidAt
	}
	s.publisher.Publish(ctx, events.Event{
		Type:          events.TypeSessionPaid,
		Key:           session.RobotID,
		CorrelationID: middleware.RequestIDFromContext(ctx),
		Data: events.SessionPaid{
			SessionID:   session.ID,
			UserID:      payer,
			RobotID:     session.RobotID,
			TxSignature: paid.TxSignature,
			PaidAt:      paidAt,
			LockSeconds: int64(duration.Seconds()),
		},
	})

	return &model.VerifyResponse{Verified: true, SessionID: session.ID}, nil
}

// holdLock makes sure the payer of a paid session holds the robot before a
// task is dispatched. A free robot is taken for the session's duration.
func (s *paymentService) holdLock(ctx context.Context, robot *model.Robot, payer string, paid *model.PaymentSession) error {
	lock, err := s.locks.Info(ctx, robot.ID)
	if err != nil {
		s.cfg.Log.Error("Failed to read robot lock", "robot_id", robot.ID, "error", err)
		return apperrors.Unavailable("Lock store")
	}
	if lock != nil {
		if lock.Holder != payer {
			s.cfg.Log.Warn("Paid session blocked by another holder", "session_id", paid.ID, "robot_id", robot.ID)
			return apperrors.Conflict(MessageRobotLocked)
		}
		return nil
	}

	duration := ResolveDuration(robot, paid.Payload, s.cfg.DefaultLockDuration)
	acquired, err := s.locks.TryAcquire(ctx, robot.ID, payer, duration)
	if err != nil {
		s.cfg.Log.Error("Failed to acquire robot lock", "robot_id", robot.ID, "error", err)
		return apperrors.Unavailable("Lock store")
	}
	if !acquired {
		return apperrors.Conflict(MessageRobotLocked)
	}
	return nil
}

// lockDuration falls back to the default when the robot cannot be read.
func (s *paymentService) lockDuration(ctx context.Context, session *model.PaymentSession) time.Duration {
	robot, err := s.robots.GetByID(ctx, session.RobotID)
	if err != nil {
		s.cfg.Log.Warn("Robot unavailable for lock duration, using default",
			"robot_id", session.RobotID,
			"error", err,
		)
		return s.cfg.DefaultLockDuration
	}
	return ResolveDuration(robot, session.Payload, s.cfg.DefaultLockDuration)
}

// ResolveDuration picks the rental plan named by payload["rental_plan_index"].
// A missing, non-integer or out of range index yields fallback.
func ResolveDuration(robot *model.Robot, payload map[string]any, fallback time.Duration) time.Duration {
	index, ok := planIndex(payload["rental_plan_index"])
	if !ok {
		return fallback
	}
	plan, ok := robot.PlanAt(index)
	if !ok || plan.DurationMinutes <= 0 {
		return fallback
	}
	return time.Duration(plan.DurationMinutes) * time.Minute
}

func planIndex(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}

func (s *paymentService) SessionStatus(ctx context.Context, payer, sessionID string) (*SessionView, error) {
	session, err := s.ownedSession(ctx, payer, sessionID)
	if err != nil {
		return nil, err
	}

	return &SessionView{
		SessionID: session.ID,
		Status:    session.Status,
		Amount:    session.Amount,
		Currency:  session.Currency,
		RobotID:   session.RobotID,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
		PaidAt:    session.PaidAt,
	}, nil
}

func (s *paymentService) CancelSession(ctx context.Context, payer, sessionID string) error {
	session, err := s.ownedSession(ctx, payer, sessionID)
	if err != nil {
		return err
	}
	if session.Status != model.SessionStatusPending {
		return translate(paymenterrors.ErrSessionNotPending)
	}

	if err := s.sessions.Delete(ctx, session.ID); err != nil {
		if errors.Is(err, sessionserrors.ErrNotFound) {
			return translate(err)
		}
		s.cfg.Log.Error("Failed to delete payment session", "session_id", session.ID, "error", err)
		return apperrors.Unavailable("Session store")
	}

	s.cfg.Log.Info("Payment session cancelled", "session_id", session.ID, "user_id", payer)
	return nil
}

func (s *paymentService) ownedSession(ctx context.Context, payer, sessionID string) (*model.PaymentSession, error) {
	sessionID = sanitizer.SanitizeSessionID(sessionID)
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sessionserrors.ErrNotFound) || errors.Is(err, sessionserrors.ErrInvalidID) {
			return nil, translate(err)
		}
		s.cfg.Log.Error("Failed to read payment session", "session_id", sessionID, "error", err)
		return nil, apperrors.Unavailable("Session store")
	}
	if err := checkSession(session, payer, ""); err != nil {
		return nil, translate(err)
	}
	return session, nil
}

package verifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	settlementerrors "robopay/internal/settlement/errors"
	"robopay/pkg/logger"
	"robopay/pkg/money"
	"robopay/pkg/retry"
)

const (
	ReasonInvalidSignature   = "invalid transaction signature"
	ReasonNotFound           = "transaction not found"
	ReasonFailedOnChain      = "transaction failed on chain"
	ReasonNoMatchingTransfer = "no transfer matching the expected amount and recipient"
	ReasonMemoMissing        = "memo not found in transaction"
	ReasonInvalidRecipient   = "invalid recipient address"
)

// Expectation describes the payment a transaction must satisfy.
// Empty Recipient or Memo skip the corresponding check.
type Expectation struct {
	Signature string
	Amount    money.Amount
	Recipient string
	Memo      string
}

type Outcome struct {
	Verified bool
	Reason   string
}

type Config struct {
	Policy    retry.Policy
	Tolerance money.Amount
	Decimals  int
	Mint      string
	// MemoSupported enables the memo check. Wallets that cannot attach a memo
	// leave it off.
	MemoSupported bool
}

type Verifier struct {
	fetcher   TransactionFetcher
	policy    retry.Policy
	tolerance uint64
	decimals  int
	mint      solana.PublicKey
	hasMint   bool
	memo      bool
	log       *logger.Logger
}

func NewVerifier(fetcher TransactionFetcher, cfg Config, log *logger.Logger) (*Verifier, error) {
	v := &Verifier{
		fetcher:   fetcher,
		policy:    cfg.Policy,
		tolerance: cfg.Tolerance.ToUnits(cfg.Decimals),
		decimals:  cfg.Decimals,
		memo:      cfg.MemoSupported,
		log:       log,
	}

	if cfg.Mint != "" {
		mint, err := solana.PublicKeyFromBase58(cfg.Mint)
		if err != nil {
			return nil, fmt.Errorf("invalid stablecoin mint %q: %w", cfg.Mint, err)
		}
		v.mint = mint
		v.hasMint = true
	}

	return v, nil
}

// Verify never returns an error: every failure is a negative Outcome.
func (v *Verifier) Verify(ctx context.Context, exp Expectation) Outcome {
	sig, err := solana.SignatureFromBase58(exp.Signature)
	if err != nil {
		return v.reject(exp, ReasonInvalidSignature, err)
	}

	accepted, err := v.acceptedDestinations(exp.Recipient)
	if err != nil {
		return v.reject(exp, ReasonInvalidRecipient, err)
	}

	tx, err := retry.Do(ctx, v.policy, func(ctx context.Context, attempt int) (*Transaction, error) {
		tx, err := v.fetcher.Fetch(ctx, sig)
		if err != nil {
			v.log.Debug("Transaction fetch failed",
				"signature", exp.Signature,
				"attempt", attempt,
				"error", err,
			)
		}
		return tx, err
	})
	if err != nil {
		reason := ReasonNotFound
		if errors.Is(err, settlementerrors.ErrInvalidSignature) {
			reason = ReasonInvalidSignature
		}
		return v.reject(exp, reason, err)
	}

	if tx.Failed() {
		return v.reject(exp, ReasonFailedOnChain, nil)
	}

	instructions := tx.Instructions()

	if !v.hasMatchingTransfer(instructions, exp.Amount, accepted) {
		return v.reject(exp, ReasonNoMatchingTransfer, nil)
	}

	if v.memo && exp.Memo != "" && !hasMemo(instructions, exp.Memo) {
		return v.reject(exp, ReasonMemoMissing, nil)
	}

	v.log.Info("Transaction verified", "signature", exp.Signature, "amount", exp.Amount.String())
	return Outcome{Verified: true}
}

func (v *Verifier) reject(exp Expectation, reason string, err error) Outcome {
	args := []any{"signature", exp.Signature, "reason", reason}
	if err != nil {
		args = append(args, "error", err)
	}
	v.log.Warn("Transaction verification failed", args...)
	return Outcome{Verified: false, Reason: reason}
}

// acceptedDestinations is nil when no recipient is expected. Otherwise it
// holds the recipient and, with a configured mint, its associated token account.
func (v *Verifier) acceptedDestinations(recipient string) (map[string]struct{}, error) {
	if recipient == "" {
		return nil, nil
	}

	accepted := map[string]struct{}{recipient: {}}
	if !v.hasMint {
		return accepted, nil
	}

	owner, err := solana.PublicKeyFromBase58(recipient)
	if err != nil {
		return nil, err
	}
	ata, _, err := solana.FindAssociatedTokenAddress(owner, v.mint)
	if err != nil {
		return nil, err
	}
	accepted[ata.String()] = struct{}{}
	return accepted, nil
}

func (v *Verifier) hasMatchingTransfer(instructions []Instruction, amount money.Amount, accepted map[string]struct{}) bool {
	expected := amount.ToUnits(v.decimals)

	for _, in := range instructions {
		t, ok := in.asTransfer()
		if !ok {
			continue
		}
		if t.checked && v.hasMint && t.mint != "" && t.mint != v.mint.String() {
			continue
		}
		if !v.withinTolerance(t.amount, expected) {
			continue
		}
		if accepted != nil {
			if _, ok := accepted[t.destination]; !ok {
				continue
			}
		}
		return true
	}
	return false
}

func (v *Verifier) withinTolerance(actual, expected uint64) bool {
	if actual >= expected {
		return actual-expected <= v.tolerance
	}
	return expected-actual <= v.tolerance
}

func hasMemo(instructions []Instruction, memo string) bool {
	for _, in := range instructions {
		if text, ok := in.memoText(); ok && strings.Contains(text, memo) {
			return true
		}
	}
	return false
}

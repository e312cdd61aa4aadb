package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	settlementerrors "robopay/internal/settlement/errors"
	mongotx "robopay/pkg/db/mongo"
	"robopay/pkg/model"
)

const (
	CollectionName = "Settlements"
)

// SettlementRepository remembers which session each transaction signature paid for.
type SettlementRepository interface {
	Record(ctx context.Context, s *model.Settlement) error
	FindBySignature(ctx context.Context, signature string) (*model.Settlement, error)
	Release(ctx context.Context, signature, sessionID string) error
}

type mongoSettlementRepository struct {
	collection   *mongo.Collection
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func NewMongoSettlementRepository(db *mongo.Database, readTimeout, writeTimeout time.Duration) SettlementRepository {
	return &mongoSettlementRepository{
		collection:   db.Collection(CollectionName),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// Record is idempotent for the session already bound to the signature and
// fails with ErrSignatureUsed for any other session.
func (r *mongoSettlementRepository) Record(ctx context.Context, s *model.Settlement) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	if s.RecordedAt.IsZero() {
		s.RecordedAt = time.Now().UTC().Truncate(time.Millisecond)
	}

	_, err := r.collection.InsertOne(ctx, s)
	if err == nil {
		return nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to record settlement: %w", err)
	}

	var existing model.Settlement
	if err := r.collection.FindOne(ctx, bson.M{"_id": s.Signature}).Decode(&existing); err != nil {
		return fmt.Errorf("failed to read existing settlement: %w", err)
	}
	if existing.SessionID != s.SessionID {
		return fmt.Errorf("%w: %s", settlementerrors.ErrSignatureUsed, s.Signature)
	}
	return nil
}

func (r *mongoSettlementRepository) FindBySignature(ctx context.Context, signature string) (*model.Settlement, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.readTimeout)
	defer cancel()

	var s model.Settlement
	if err := r.collection.FindOne(ctx, bson.M{"_id": signature}).Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, settlementerrors.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to find settlement: %w", err)
	}
	return &s, nil
}

// Release forgets a signature, but only while it is still bound to sessionID.
// Releasing an unknown signature is not an error.
func (r *mongoSettlementRepository) Release(ctx context.Context, signature, sessionID string) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": signature, "session_id": sessionID})
	if err != nil {
		return fmt.Errorf("failed to release settlement: %w", err)
	}
	return nil
}

package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"robopay/internal/migrations/mongo/validators"
	"robopay/pkg/logger"
)

var (
	RobotsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "category", Value: 1}}},
	}

	ExecutionsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "robot_id", Value: 1}, {Key: "executed_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "executed_at", Value: -1}}},
		{Keys: bson.D{{Key: "session_id", Value: 1}}},
	}

	SettlementsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "recorded_at", Value: -1}}},
	}
)

type CollectionDef struct {
	Indexes   []mongo.IndexModel
	Validator bson.M
}

// Collections maps every gateway collection to its schema.
func Collections() map[string]CollectionDef {
	return map[string]CollectionDef{
		"Robots": {
			Indexes:   RobotsIndexes,
			Validator: validators.RobotValidator,
		},
		"Executions": {
			Indexes:   ExecutionsIndexes,
			Validator: validators.ExecutionValidator,
		},
		"Settlements": {
			Indexes:   SettlementsIndexes,
			Validator: validators.SettlementValidator,
		},
	}
}

func RunMigration(ctx context.Context, client *mongo.Client, databaseName string, log *logger.Logger) error {
	db := client.Database(databaseName)
	log.Info("Running Mongo migrations", "database", databaseName)

	for name, def := range Collections() {
		if err := ensureCollection(ctx, db, name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	log.Info("All migrations applied")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed to update collection validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "count", len(models))
	return nil
}

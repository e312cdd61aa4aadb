package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"robopay/pkg/logger"
)

func TestCollections(t *testing.T) {
	defs := Collections()
	require.Len(t, defs, 3)

	for _, name := range []string{"Robots", "Executions", "Settlements"} {
		def, ok := defs[name]
		require.True(t, ok, name)
		assert.NotEmpty(t, def.Indexes, name)

		schema, ok := def.Validator["$jsonSchema"].(bson.M)
		require.True(t, ok, name)
		assert.NotEmpty(t, schema["required"], name)
	}
}

func TestRunMigration(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("creates missing collections", func(mt *mtest.T) {
		ns := mt.DB.Name() + ".$cmd.listCollections"
		for range Collections() {
			mt.AddMockResponses(
				mtest.CreateCursorResponse(0, ns, mtest.FirstBatch),
				mtest.CreateSuccessResponse(),
				mtest.CreateSuccessResponse(),
			)
		}

		err := RunMigration(context.Background(), mt.Client, mt.DB.Name(), logger.Discard())
		assert.NoError(mt, err)
	})

	mt.Run("validator update failure is not fatal", func(mt *mtest.T) {
		ns := mt.DB.Name() + ".$cmd.listCollections"
		for name := range Collections() {
			mt.AddMockResponses(
				mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "name", Value: name}}),
				mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 13, Message: "unauthorized"}),
				mtest.CreateSuccessResponse(),
			)
		}

		err := RunMigration(context.Background(), mt.Client, mt.DB.Name(), logger.Discard())
		assert.NoError(mt, err)
	})

	mt.Run("list failure aborts", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 13, Message: "unauthorized"}))

		err := RunMigration(context.Background(), mt.Client, mt.DB.Name(), logger.Discard())
		assert.Error(mt, err)
	})
}

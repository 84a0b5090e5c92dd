package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoSink_Record(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("insert", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		sink := newMongoSink(mt.Coll)

		require.NoError(mt, sink.Record(context.Background(), transferEvent()))
	})

	mt.Run("duplicate event id", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))
		sink := newMongoSink(mt.Coll)

		err := sink.Record(context.Background(), transferEvent())
		require.Error(mt, err)
		assert.Contains(mt, err.Error(), "insert audit event")
	})
}

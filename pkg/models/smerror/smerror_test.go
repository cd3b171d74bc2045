package smerror_test

import (
	"fmt"
	"testing"

	"github.com/pg-sharding/shardman/pkg/models/smerror"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	assert := assert.New(t)

	err := smerror.Newf(smerror.SHARDMAN_NO_SUCH_REPLICASET, "replicaset %q is unknown", "rs2")
	assert.Equal(`Code: SHARDMAN_NO_SUCH_REPLICASET. Name: No such replicaset. Description: replicaset "rs2" is unknown.`, err.Error())
	assert.Equal("Unexpected error", smerror.GetMessageByCode("nope"))
}

func TestCodeThroughWrapping(t *testing.T) {
	assert := assert.New(t)

	err := fmt.Errorf("send: %w", smerror.New(smerror.SHARDMAN_MOVE_TO_SELF, "self"))
	assert.Equal(smerror.SHARDMAN_MOVE_TO_SELF, smerror.Code(err))
	assert.True(smerror.IsCode(err, smerror.SHARDMAN_MOVE_TO_SELF))
	assert.False(smerror.IsCode(err, smerror.SHARDMAN_WRONG_BUCKET))
	assert.Equal(smerror.SHARDMAN_UNEXPECTED, smerror.Code(fmt.Errorf("plain")))
}

func TestWrongBucketHint(t *testing.T) {
	assert := assert.New(t)

	noHint := smerror.NewWrongBucket(5, "", "bucket %d not found", 5)
	assert.Nil(noHint.Hint)

	withHint := smerror.NewWrongBucket(5, "rs2", "bucket %d is sent", 5)
	assert.Equal(&smerror.BucketHint{BucketID: 5, Destination: "rs2"}, withHint.Hint)

	redirect := smerror.NewRedirect(5, "", "bucket %d is receiving", 5)
	assert.Equal(&smerror.BucketHint{BucketID: 5}, redirect.Hint)
	assert.True(smerror.IsCode(redirect, smerror.SHARDMAN_WRONG_BUCKET))
}

func TestConfigReason(t *testing.T) {
	assert := assert.New(t)

	err := smerror.NewConfigError(smerror.DuplicateUri, "u1")
	reason, ok := smerror.ConfigReasonOf(err)
	assert.True(ok)
	assert.Equal(smerror.DuplicateUri, reason)
	assert.Equal("u1", err.Value)

	_, ok = smerror.ConfigReasonOf(smerror.New(smerror.SHARDMAN_WRONG_BUCKET, "x"))
	assert.False(ok)
}

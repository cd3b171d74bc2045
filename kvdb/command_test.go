package kvdb_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pg-sharding/shardman/kvdb"
)

func TestExecuteCommandsUndoesInReverseOrder(t *testing.T) {
	assert := assert.New(t)

	m := map[uint64]string{1: "active"}
	err := kvdb.ExecuteCommands(func() error { return errors.New("disk full") },
		kvdb.NewUpdateCommand(m, uint64(1), "receiving"),
		kvdb.NewUpdateCommand(m, uint64(1), "sending"),
		kvdb.NewDeleteCommand(m, uint64(1)),
	)
	assert.EqualError(err, "disk full")
	assert.Equal(map[uint64]string{1: "active"}, m)
}

func TestExecuteCommandsStopsOnFailedCommand(t *testing.T) {
	assert := assert.New(t)

	m := map[string]int{}
	undone := false
	err := kvdb.ExecuteCommands(func() error { return nil },
		kvdb.NewUpdateCommand(m, "a", 1),
		kvdb.NewCustomCommand(func() error { return errors.New("boom") }, func() error {
			undone = true
			return nil
		}),
		kvdb.NewUpdateCommand(m, "b", 2),
	)
	assert.EqualError(err, "boom")
	assert.Empty(m)
	// the failed command itself is not undone
	assert.False(undone)
}

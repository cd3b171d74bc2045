package kvdb

import (
	"fmt"

	"github.com/pg-sharding/shardman/pkg/smlog"
)

type Command interface {
	Do() error
	Undo() error
}

func NewDeleteCommand[K comparable, T any](m map[K]T, key K) *DeleteCommand[K, T] {
	return &DeleteCommand[K, T]{m: m, key: key}
}

type DeleteCommand[K comparable, T any] struct {
	m       map[K]T
	key     K
	value   T
	present bool
}

func (c *DeleteCommand[K, T]) Do() error {
	c.value, c.present = c.m[c.key]
	delete(c.m, c.key)
	return nil
}

func (c *DeleteCommand[K, T]) Undo() error {
	if !c.present {
		delete(c.m, c.key)
	} else {
		c.m[c.key] = c.value
	}
	return nil
}

func NewUpdateCommand[K comparable, T any](m map[K]T, key K, value T) *UpdateCommand[K, T] {
	return &UpdateCommand[K, T]{m: m, key: key, value: value}
}

type UpdateCommand[K comparable, T any] struct {
	m         map[K]T
	key       K
	value     T
	prevValue T
	present   bool
}

func (c *UpdateCommand[K, T]) Do() error {
	c.prevValue, c.present = c.m[c.key]
	c.m[c.key] = c.value
	return nil
}

func (c *UpdateCommand[K, T]) Undo() error {
	if !c.present {
		delete(c.m, c.key)
	} else {
		c.m[c.key] = c.prevValue
	}
	return nil
}

func NewCustomCommand(do func() error, undo func() error) *CustomCommand {
	return &CustomCommand{do: do, undo: undo}
}

type CustomCommand struct {
	do   func() error
	undo func() error
}

func (c *CustomCommand) Do() error {
	return c.do()
}

func (c *CustomCommand) Undo() error {
	return c.undo()
}

func doCommands(commands ...Command) (int, error) {
	for i, c := range commands {
		err := c.Do()
		if err != nil {
			return i, err
		}
	}
	return len(commands), nil
}

func undoCommands(commands ...Command) error {
	smlog.Zero.Info().Int("commands", len(commands)).Msg("memkvdb: undo commands")
	for i := len(commands) - 1; i >= 0; i-- {
		if err := commands[i].Undo(); err != nil {
			return err
		}
	}
	return nil
}

// ExecuteCommands applies commands in order and then calls saver. If any
// step fails, the completed commands are undone in reverse order.
func ExecuteCommands(saver func() error, commands ...Command) error {
	completed, err := doCommands(commands...)
	if err == nil {
		err = saver()
	}
	if err != nil {
		undoErr := undoCommands(commands[:completed]...)
		if undoErr != nil {
			return fmt.Errorf("failed to undo command %s while: %s", undoErr.Error(), err.Error())
		}
		return err
	}
	return nil
}

package builtins_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scostello/monty-go/builtins"
)

func TestIsSubclass(t *testing.T) {
	assert.True(t, builtins.IsSubclass("KeyError", "KeyError"))
	assert.True(t, builtins.IsSubclass("KeyError", "LookupError"))
	assert.True(t, builtins.IsSubclass("KeyError", "Exception"))
	assert.True(t, builtins.IsSubclass("KeyError", "BaseException"))
	assert.False(t, builtins.IsSubclass("KeyError", "ValueError"))
	assert.False(t, builtins.IsSubclass("Exception", "KeyError"))

	assert.True(t, builtins.IsSubclass("FileNotFoundError", "OSError"))
	assert.True(t, builtins.IsSubclass("NotImplementedError", "RuntimeError"))
	assert.True(t, builtins.IsSubclass("FrozenInstanceError", "AttributeError"))
	assert.False(t, builtins.IsSubclass("BaseException", "Exception"))
}

func TestEveryKindReachesBaseException(t *testing.T) {
	for kind := range builtins.ExcParent {
		assert.True(t, builtins.IsSubclass(kind, "BaseException"), kind)
	}
}

func TestDeadlineExceededMessage(t *testing.T) {
	assert.Equal(t, "TimeoutError: deadline exceeded", builtins.DeadlineExceeded{}.Error())
}

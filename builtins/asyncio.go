package builtins

import (
	"github.com/scostello/monty-go/registry"
	"github.com/scostello/monty-go/values"
)

// RegisterAsyncio binds the asyncio names that survive as ordinary callable
// values instead of being lowered by codegen to their dedicated opcodes.
// `await asyncio.gather(...)`/`await asyncio.wait(...)` compile straight to
// YIELD_FUTURE_JOIN (interp/dispatch.go) because joining futures needs
// access to the frame's suspend/resume machinery no builtin can reach;
// these two entries only exist so a script that merely *names* gather/wait
// without awaiting them (stores it, passes it around) gets a clear error
// instead of an unresolved name.
func RegisterAsyncio(reg *registry.Builtins) {
	reg.Add("asyncio.run", biAsyncioRun)
	reg.Add("asyncio.gather", biAsyncioUncalled("gather"))
	reg.Add("asyncio.wait", biAsyncioUncalled("wait"))
}

// biAsyncioRun is the identity function: by the time asyncio.run(coro())'s
// own CALL instruction evaluates its argument, coro() has already run to
// completion (or suspended further down the call stack, in which case
// execution never reaches this builtin at all) — there is no separate event
// loop to drive, so asyncio.run just hands back what it was given.
func biAsyncioRun(_ registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) == 0 {
		return values.None(), nil
	}
	return args[0], nil
}

func biAsyncioUncalled(name string) registry.BuiltinImplementation {
	return func(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
		return values.Value{}, ctx.Raise("NotImplementedError", "asyncio."+name+"() is only supported in an await expression")
	}
}

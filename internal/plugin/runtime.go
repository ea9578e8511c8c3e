package plugin

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
)

// Runtime wraps goja VM with plugin-specific bindings
type Runtime struct {
	vm     *goja.Runtime
	logger zerolog.Logger
}

// NewRuntime creates a new Runtime with all necessary bindings
func NewRuntime(logger zerolog.Logger) *Runtime {
	vm := goja.New()
	r := &Runtime{
		vm:     vm,
		logger: logger,
	}
	r.setupBindings()
	return r
}

// VM returns the underlying goja runtime
func (r *Runtime) VM() *goja.Runtime {
	return r.vm
}

// setupBindings sets up all JavaScript bindings
func (r *Runtime) setupBindings() {
	r.setupConsole()
	r.setupUtils()
}

// setupConsole creates console.log, console.error, console.warn and console.debug
func (r *Runtime) setupConsole() {
	console := r.vm.NewObject()

	logAt := func(event func() *zerolog.Event) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			args := make([]interface{}, len(call.Arguments))
			for i, arg := range call.Arguments {
				args[i] = arg.Export()
			}
			event().Msgf("[plugin] %v", args)
			return goja.Undefined()
		}
	}

	console.Set("log", logAt(r.logger.Info))
	console.Set("error", logAt(r.logger.Error))
	console.Set("warn", logAt(r.logger.Warn))
	console.Set("debug", logAt(r.logger.Debug))

	r.vm.Set("console", console)
}

// setupUtils creates utility functions for Solana keys and JSON
func (r *Runtime) setupUtils() {
	utils := r.vm.NewObject()

	// base58Decode converts a base58 string to a hex string
	utils.Set("base58Decode", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(r.vm.ToValue("base58Decode requires 1 argument"))
		}
		b, err := base58.Decode(call.Arguments[0].String())
		if err != nil {
			panic(r.vm.ToValue(fmt.Sprintf("invalid base58 string: %v", err)))
		}
		return r.vm.ToValue(hex.EncodeToString(b))
	})

	// base58Encode converts a hex string to base58
	utils.Set("base58Encode", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(r.vm.ToValue("base58Encode requires 1 argument"))
		}
		b, err := hex.DecodeString(call.Arguments[0].String())
		if err != nil {
			panic(r.vm.ToValue(fmt.Sprintf("invalid hex string: %v", err)))
		}
		return r.vm.ToValue(base58.Encode(b))
	})

	// sha256 hashes a string and returns hex
	utils.Set("sha256", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(r.vm.ToValue("sha256 requires 1 argument"))
		}
		sum := sha256.Sum256([]byte(call.Arguments[0].String()))
		return r.vm.ToValue(hex.EncodeToString(sum[:]))
	})

	// parseJSON parses JSON string
	utils.Set("parseJSON", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(r.vm.ToValue("parseJSON requires string"))
		}
		var result interface{}
		if err := json.Unmarshal([]byte(call.Arguments[0].String()), &result); err != nil {
			panic(r.vm.ToValue(fmt.Sprintf("invalid JSON: %v", err)))
		}
		return r.vm.ToValue(result)
	})

	// stringifyJSON converts value to JSON string
	utils.Set("stringifyJSON", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(r.vm.ToValue("stringifyJSON requires value"))
		}
		data, err := json.Marshal(call.Arguments[0].Export())
		if err != nil {
			panic(r.vm.ToValue(fmt.Sprintf("JSON stringify error: %v", err)))
		}
		return r.vm.ToValue(string(data))
	})

	r.vm.Set("utils", utils)
}

// RunProgram executes a compiled script
func (r *Runtime) RunProgram(p *goja.Program) (goja.Value, error) {
	return r.vm.RunProgram(p)
}

// CallFunction calls a JavaScript function by name
func (r *Runtime) CallFunction(name string, args ...interface{}) (goja.Value, error) {
	fn, ok := goja.AssertFunction(r.vm.Get(name))
	if !ok {
		return nil, fmt.Errorf("function %s not found", name)
	}

	jsArgs := make([]goja.Value, len(args))
	for i, arg := range args {
		jsArgs[i] = r.vm.ToValue(arg)
	}

	return fn(goja.Undefined(), jsArgs...)
}

// Interrupt aborts the running script
func (r *Runtime) Interrupt(reason string) {
	r.vm.Interrupt(reason)
}

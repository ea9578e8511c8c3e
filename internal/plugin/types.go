package plugin

import (
	"context"

	"github.com/dop251/goja"
)

// Plugin represents a loaded JavaScript URL transform
type Plugin struct {
	Name    string        // plugin name (filename without extension)
	Script  string        // JavaScript source code
	Program *goja.Program // compiled script, shared by every execution
}

// Input is what a transform sees about the picture being resolved
type Input struct {
	URL   string `json:"url"`
	Owner string `json:"owner"`
	Mint  string `json:"mint,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Transformer rewrites resolved image URLs
type Transformer interface {
	// Transform runs every plugin in order and returns the final URL
	Transform(ctx context.Context, in Input) string
	// Names returns loaded plugin names in execution order
	Names() []string
	// Close releases all resources
	Close()
}

// PluginError represents an error that occurred during plugin execution
type PluginError struct {
	Plugin  string `json:"plugin"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *PluginError) Error() string {
	return e.Plugin + ": " + e.Message
}

// NewPluginError creates a new plugin error
func NewPluginError(plugin string, code int, message string) *PluginError {
	return &PluginError{
		Plugin:  plugin,
		Code:    code,
		Message: message,
	}
}

// Plugin error codes
const (
	ErrCodePluginExecution = -32002
	ErrCodePluginTimeout   = -32003
	ErrCodePluginResult    = -32004
)

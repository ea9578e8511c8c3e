package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
)

// DefaultExecutionTimeout is the default timeout for one plugin execution
const DefaultExecutionTimeout = time.Second

// transformFunction is the function every plugin must define
const transformFunction = "transform"

// PluginManager manages JavaScript URL transforms
type PluginManager struct {
	plugins []*Plugin // execution order
	logger  zerolog.Logger
	timeout time.Duration
	mu      sync.RWMutex
}

// NewPluginManager creates a new PluginManager
func NewPluginManager(logger zerolog.Logger) *PluginManager {
	return &PluginManager{
		logger:  logger.With().Str("component", "plugin-manager").Logger(),
		timeout: DefaultExecutionTimeout,
	}
}

// SetTimeout sets the execution timeout for plugins
func (m *PluginManager) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		m.timeout = timeout
	}
}

// LoadFromDirectory loads all .js plugins from a directory. os.ReadDir sorts by
// filename, which is also the execution order.
func (m *PluginManager) LoadFromDirectory(dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		m.logger.Warn().Str("directory", dir).Msg("plugins directory does not exist")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat plugins directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("plugins path is not a directory: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read plugins directory: %w", err)
	}

	loadedCount := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".js") {
			continue
		}

		if err := m.loadPlugin(filepath.Join(dir, entry.Name())); err != nil {
			m.logger.Error().
				Err(err).
				Str("file", entry.Name()).
				Msg("failed to load plugin")
			continue
		}
		loadedCount++
	}

	m.logger.Info().
		Int("loaded", loadedCount).
		Str("directory", dir).
		Msg("plugins loaded")

	return nil
}

// loadPlugin compiles a plugin and checks that it defines transform
func (m *PluginManager) loadPlugin(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read plugin file: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), ".js")
	return m.add(name, string(content))
}

// Add compiles and appends a plugin from source
func (m *PluginManager) Add(name, script string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(name, script)
}

func (m *PluginManager) add(name, script string) error {
	program, err := goja.Compile(name+".js", script, false)
	if err != nil {
		return fmt.Errorf("failed to compile plugin: %w", err)
	}

	runtime := NewRuntime(m.logger)

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		runtime.Interrupt("plugin load timed out")
	})
	defer stop()

	if _, err := runtime.RunProgram(program); err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return fmt.Errorf("plugin top level did not finish within %s", m.timeout)
		}
		return fmt.Errorf("failed to run plugin: %w", err)
	}
	if _, ok := goja.AssertFunction(runtime.VM().Get(transformFunction)); !ok {
		return fmt.Errorf("plugin does not define %s(url, picture)", transformFunction)
	}

	m.plugins = append(m.plugins, &Plugin{
		Name:    name,
		Script:  script,
		Program: program,
	})

	m.logger.Info().Str("name", name).Msg("plugin loaded")
	return nil
}

// Transform runs every plugin in order. A plugin that fails, times out or
// returns an empty value leaves the URL unchanged.
func (m *PluginManager) Transform(ctx context.Context, in Input) string {
	m.mu.RLock()
	plugins := m.plugins
	m.mu.RUnlock()

	for _, plugin := range plugins {
		if ctx.Err() != nil {
			break
		}
		out, err := m.execute(ctx, plugin, in)
		if err != nil {
			m.logger.Warn().
				Err(err).
				Str("plugin", plugin.Name).
				Str("owner", in.Owner).
				Msg("plugin transform failed")
			continue
		}
		in.URL = out
	}
	return in.URL
}

// execute runs one plugin in a fresh runtime, interrupting it on timeout
func (m *PluginManager) execute(ctx context.Context, plugin *Plugin, in Input) (string, error) {
	runtime := NewRuntime(m.logger)

	execCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	stop := context.AfterFunc(execCtx, func() {
		runtime.Interrupt("plugin execution timed out")
	})
	defer stop()

	if _, err := runtime.RunProgram(plugin.Program); err != nil {
		return "", m.wrapError(plugin, err)
	}

	picture := map[string]interface{}{
		"owner": in.Owner,
		"mint":  in.Mint,
		"name":  in.Name,
	}
	result, err := runtime.CallFunction(transformFunction, in.URL, picture)
	if err != nil {
		return "", m.wrapError(plugin, err)
	}

	out, ok := result.Export().(string)
	if !ok || out == "" {
		return "", NewPluginError(plugin.Name, ErrCodePluginResult, "transform must return a non-empty string")
	}
	return out, nil
}

func (m *PluginManager) wrapError(plugin *Plugin, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return NewPluginError(plugin.Name, ErrCodePluginTimeout, "plugin execution timed out")
	}
	var jsErr *goja.Exception
	if errors.As(err, &jsErr) {
		return NewPluginError(plugin.Name, ErrCodePluginExecution, jsErr.String())
	}
	return NewPluginError(plugin.Name, ErrCodePluginExecution, err.Error())
}

// Names returns loaded plugin names in execution order
func (m *PluginManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.plugins))
	for _, plugin := range m.plugins {
		names = append(names, plugin.Name)
	}
	return names
}

// Close releases all resources
func (m *PluginManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plugins = nil
	m.logger.Info().Msg("plugin manager closed")
}

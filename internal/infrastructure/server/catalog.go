package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/arranmoreferry/mcp-server/internal/domain"
	"github.com/arranmoreferry/mcp-server/internal/domain/shared"
	"github.com/arranmoreferry/mcp-server/internal/infrastructure/logging"
)

// ToolFunc is the implementation bound to a catalog entry. It receives
// already-decoded arguments and produces content or a domain error.
type ToolFunc func(ctx context.Context, args map[string]interface{}) ([]shared.Content, error)

type registeredTool struct {
	def shared.Tool
	fn  ToolFunc
}

// ToolCatalog answers "what tools exist" and dispatches invocations. The
// published tool list is an immutable snapshot that is atomically replaced
// on registration and on each periodic refresh; a snapshot handed to one
// tools/list response is never mutated afterwards.
type ToolCatalog struct {
	mu       sync.RWMutex
	tools    map[string]registeredTool
	order    []string
	snapshot []shared.Tool

	logger *logging.Logger
}

// NewToolCatalog creates an empty catalog.
func NewToolCatalog(logger *logging.Logger) *ToolCatalog {
	return &ToolCatalog{
		tools:  make(map[string]registeredTool),
		logger: logger,
	}
}

// Register binds a tool implementation under its descriptor's name,
// replacing any previous binding, and publishes a fresh snapshot.
func (c *ToolCatalog) Register(def shared.Tool, fn ToolFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tools[def.Name]; !exists {
		c.order = append(c.order, def.Name)
	}
	c.tools[def.Name] = registeredTool{def: def, fn: fn}
	c.snapshot = c.rebuildLocked()
}

// ListTools returns the current catalog snapshot. Callers must treat the
// returned slice as read-only.
func (c *ToolCatalog) ListTools() []shared.Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Refresh recomputes the snapshot from the registered tools and swaps it
// in. The refresh is unconditional; the caller decides whether to announce
// it to connected sessions.
func (c *ToolCatalog) Refresh() []shared.Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = c.rebuildLocked()
	return c.snapshot
}

func (c *ToolCatalog) rebuildLocked() []shared.Tool {
	tools := make([]shared.Tool, 0, len(c.order))
	for _, name := range c.order {
		tools = append(tools, c.tools[name].def)
	}
	return tools
}

// CallTool invokes the named tool with the given arguments. A nil argument
// map fails with MissingArgumentsError and an unregistered name fails with
// ToolNotFoundError. A failure inside the tool implementation, including a
// panic, is converted into a "failed" text payload so a broken tool never
// tears down the caller's protocol channel.
func (c *ToolCatalog) CallTool(ctx context.Context, name string, args map[string]interface{}) ([]shared.Content, error) {
	if args == nil {
		return nil, domain.NewMissingArgumentsError(name)
	}

	c.mu.RLock()
	tool, ok := c.tools[name]
	c.mu.RUnlock()
	if !ok {
		return nil, domain.NewToolNotFoundError(name)
	}

	content, err := c.invoke(ctx, tool, args)
	if err != nil {
		c.logger.Error("tool invocation failed", logging.Fields{
			"tool":  name,
			"error": err.Error(),
		})
		return []shared.Content{
			shared.NewTextContent(fmt.Sprintf("Tool %s failed: %v", name, err)),
		}, nil
	}
	return content, nil
}

func (c *ToolCatalog) invoke(ctx context.Context, tool registeredTool, args map[string]interface{}) (content []shared.Content, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.ToolExecutionError{
				Name:  tool.def.Name,
				Cause: fmt.Errorf("panic: %v", r),
			}
		}
	}()
	return tool.fn(ctx, args)
}

package domain

import "fmt"

// SessionNotFoundError indicates that a requested session was not found.
type SessionNotFoundError struct {
	ID string
}

// Error returns the error message.
func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session with ID %s not found", e.ID)
}

// NewSessionNotFoundError creates a new SessionNotFoundError.
func NewSessionNotFoundError(id string) *SessionNotFoundError {
	return &SessionNotFoundError{ID: id}
}

// ToolNotFoundError indicates that a requested tool is not in the catalog.
type ToolNotFoundError struct {
	Name string
}

// Error returns the error message.
func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool with name %s not found", e.Name)
}

// NewToolNotFoundError creates a new ToolNotFoundError.
func NewToolNotFoundError(name string) *ToolNotFoundError {
	return &ToolNotFoundError{Name: name}
}

// MissingArgumentsError indicates a tool call arrived without arguments.
type MissingArgumentsError struct {
	Tool string
}

// Error returns the error message.
func (e *MissingArgumentsError) Error() string {
	return fmt.Sprintf("no arguments provided for tool %s", e.Tool)
}

// NewMissingArgumentsError creates a new MissingArgumentsError.
func NewMissingArgumentsError(tool string) *MissingArgumentsError {
	return &MissingArgumentsError{Tool: tool}
}

// ToolExecutionError indicates a tool implementation failed or panicked.
type ToolExecutionError struct {
	Name  string
	Cause error
}

// Error returns the error message.
func (e *ToolExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("tool execution failed: %s: %v", e.Name, e.Cause)
	}
	return fmt.Sprintf("tool execution failed: %s", e.Name)
}

// Unwrap returns the underlying cause.
func (e *ToolExecutionError) Unwrap() error {
	return e.Cause
}

// Package uxerror translates raw errors into user-friendly messages with
// recovery hints for the console and the CLI.
package uxerror

import (
	"errors"
	"fmt"
	"strings"

	"scenetuner/internal/adapter/tui/theme"
	"scenetuner/internal/domain"
)

// FriendlyError is a user-facing error with suggestions for recovery.
type FriendlyError struct {
	Title   string           // short heading, e.g. "Renderer Not Found"
	Message string           // one-liner explanation
	Hints   []string         // actionable recovery suggestions
	Code    domain.ErrorCode // machine-parseable category
	Raw     string           // original error text
}

// Render formats the FriendlyError as indented lines.
func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(fe.Title)
	if fe.Message != "" {
		sb.WriteString("\n  ")
		sb.WriteString(fe.Message)
	}
	if len(fe.Hints) > 0 {
		sb.WriteString("\n  Suggestions:")
		for _, h := range fe.Hints {
			sb.WriteString(fmt.Sprintf("\n    %s %s", theme.SymbolBullet, h))
		}
	}
	return sb.String()
}

type errorPattern struct {
	sentinel error
	title    string
	hints    []string
}

// Sentinel patterns are checked in order; the first errors.Is match wins.
var patterns = []errorPattern{
	{domain.ErrExecutableNotFound, "Renderer Not Found",
		[]string{"Install the renderer: pip install manimgl", "Set renderer.executable in the config file"}},
	{domain.ErrPermissionDenied, "Permission Denied",
		[]string{"Make the renderer executable (chmod +x)", "Check the permissions of the script and its directory"}},
	{domain.ErrResource, "Could Not Start Renderer",
		[]string{"Close other programs and retry", "Check the open-file and process limits"}},
	{domain.ErrBusy, "Renderer Busy",
		[]string{"Wait for the current run to finish", "Stop the current run first"}},
	{domain.ErrParse, "Script Not Understood",
		[]string{"Declare PARAMETERS = {...} at the top level of the script", "Check the dict literal for syntax errors"}},
	{domain.ErrSchema, "Incomplete Parameter Metadata",
		[]string{"Give every parameter value, type, unit, description, min and max"}},
	{domain.ErrOutOfBounds, "Value Out of Range",
		[]string{"Stay within the declared min and max"}},
	{domain.ErrTypeMismatch, "Wrong Value Type",
		[]string{"Enter a value of the parameter's declared type"}},
	{domain.ErrNoOp, "Nothing Changed", nil},
	{domain.ErrNotFound, "Not Found",
		[]string{"Check the spelling", "List what exists with 'inspect' or 'preset list'"}},
	{domain.ErrPersistence, "Could Not Save or Read File",
		[]string{"Check disk space and file permissions", "Make sure the file is valid JSON"}},
	{domain.ErrInvalidInput, "Invalid Input", nil},
	{domain.ErrConfigLoad, "Configuration Problem",
		[]string{"Run 'scenetuner doctor'", "Fix the reported field in the config file"}},
}

// Humanize converts a raw error into a FriendlyError with recovery hints.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Code: domain.CodeUnknown, Raw: "nil"}
	}
	code := domain.ErrorCodeOf(err)
	for _, p := range patterns {
		if errors.Is(err, p.sentinel) {
			return FriendlyError{Title: p.title, Message: err.Error(), Hints: p.hints, Code: code, Raw: err.Error()}
		}
	}
	if containsAny(err, "no such file", "cannot find the file") {
		return FriendlyError{
			Title:   "File Not Found",
			Message: err.Error(),
			Hints:   []string{"Check the path", "Paths are relative to the current directory"},
			Code:    code,
			Raw:     err.Error(),
		}
	}
	return FriendlyError{
		Title:   "Unexpected Error",
		Message: err.Error(),
		Hints:   []string{"Try again", "Set SCENETUNER_LOGGER_LEVEL=debug for more details"},
		Code:    code,
		Raw:     err.Error(),
	}
}

// containsAny reports whether the error text contains any of the substrings,
// ignoring case.
func containsAny(err error, substrs ...string) bool {
	lower := strings.ToLower(err.Error())
	for _, s := range substrs {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

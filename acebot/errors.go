package acebot

import (
	"errors"
	"fmt"
)

// ErrorKind is a closed enumeration of the error categories the command
// dispatcher knows how to normalize into user-facing responses. Anything
// that doesn't carry one of these kinds is treated as unexpected: logged
// with full detail and propagated, never converted to a friendly message.
type ErrorKind string

const (
	// ErrKindNoMatch indicates the resolver found nothing for a query.
	ErrKindNoMatch ErrorKind = "no_match"

	// ErrKindTooManyQueries indicates a multi-query command exceeded the
	// distinct subquery limit.
	ErrKindTooManyQueries ErrorKind = "too_many_queries"

	// ErrKindUpstreamUnavailable indicates an external fetch (feed, API)
	// failed. Transient - the poller retries next tick, user-invoked
	// commands surface a generic failure message.
	ErrKindUpstreamUnavailable ErrorKind = "upstream_unavailable"

	// ErrKindPermissionDenied indicates the invoking user lacks permission
	// to run the command.
	ErrKindPermissionDenied ErrorKind = "permission_denied"

	// ErrKindBotPermissionDenied indicates the bot user lacks a channel
	// permission the command requires.
	ErrKindBotPermissionDenied ErrorKind = "bot_permission_denied"

	// ErrKindCooldown indicates the per-user command cooldown is active.
	ErrKindCooldown ErrorKind = "cooldown"

	// ErrKindDisabledCommand indicates the command has been disabled.
	ErrKindDisabledCommand ErrorKind = "disabled_command"

	// ErrKindMalformedArgument indicates the command arguments didn't match
	// the expected signature.
	ErrKindMalformedArgument ErrorKind = "malformed_argument"
)

// CommandError is an error with a known [ErrorKind] and (optionally) a
// fixed user-facing message. The dispatcher handles these exhaustively;
// see [CommandRegistry.respondCommandError].
type CommandError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Err.Error())
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Is makes sentinel comparisons via [errors.Is] match on Kind, so
// `errors.Is(err, ErrNoMatch)` works for any no-match error regardless
// of how it was constructed.
func (e *CommandError) Is(target error) bool {
	var ce *CommandError
	if !errors.As(target, &ce) {
		return false
	}
	return e.Kind == ce.Kind
}

var (
	// ErrNoMatch is returned when a docs query matches nothing.
	ErrNoMatch = &CommandError{
		Kind:    ErrKindNoMatch,
		Message: "Sorry, couldn't find an entry similar to that.",
	}

	// ErrTooManyQueries is returned when a comma-separated docs query
	// contains more than three distinct subqueries.
	ErrTooManyQueries = &CommandError{
		Kind:    ErrKindTooManyQueries,
		Message: "Maximum three different queries.",
	}

	// ErrDisabledCommand is returned when a disabled command is invoked.
	ErrDisabledCommand = &CommandError{
		Kind:    ErrKindDisabledCommand,
		Message: "Command has been disabled.",
	}

	// ErrPermissionDenied is returned when the invoker lacks permission.
	ErrPermissionDenied = &CommandError{
		Kind:    ErrKindPermissionDenied,
		Message: "Invoker is missing permissions to run this command.",
	}

	// ErrBotPermissionDenied is returned when the bot lacks a required
	// channel permission.
	ErrBotPermissionDenied = &CommandError{
		Kind:    ErrKindBotPermissionDenied,
		Message: "Bot is missing permissions to run this command.",
	}

	// ErrCooldown is returned while a command's per-user cooldown is active.
	ErrCooldown = &CommandError{
		Kind:    ErrKindCooldown,
		Message: "Please wait before running command again.",
	}
)

// upstreamError wraps a transient external failure (HTTP transport error,
// non-success status) as [ErrKindUpstreamUnavailable].
func upstreamError(err error) *CommandError {
	return &CommandError{
		Kind:    ErrKindUpstreamUnavailable,
		Message: "Query failed.",
		Err:     err,
	}
}

// malformedArgumentError flags a usage error; the dispatcher renders the
// command's expected signature in response.
func malformedArgumentError(err error) *CommandError {
	return &CommandError{Kind: ErrKindMalformedArgument, Err: err}
}

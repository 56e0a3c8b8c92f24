/*
Package log provides structured logging for taskproc using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level.

Components obtain child loggers tagged with their name:

	logger := log.WithComponent("scheduler")
	logger.Info().Str("task_class", name).Msg("Task executed")

Init must be called once before any logging, typically from the CLI entry
point or the embedding application.
*/
package log

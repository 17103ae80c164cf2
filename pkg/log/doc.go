/*
Package log provides structured logging for Hive built on zerolog.

A single global logger is initialized once at startup via Init, then
used either through the package-level helpers (Info, Warn, Error) or
through child loggers carrying contextual fields:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("orchestrator")
	logger.Info().Str("task_id", task.ID).Msg("step started")

Child logger constructors exist for the fields that recur across the
codebase: WithComponent, WithProjectID, WithTaskID, WithRunID.

Console output (the default) is meant for interactive use; JSON output
is meant for production where logs are shipped and indexed.
*/
package log

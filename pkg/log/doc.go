/*
Package log configures structured logging over zerolog.

Init sets the global level and output format (JSON or console) once at
startup. Component code takes child loggers through WithComponent,
WithChallengeID, and WithAttemptID so every line carries its context
fields. The package-level Info/Debug/Warn/Error helpers exist for code
without a natural component.
*/
package log

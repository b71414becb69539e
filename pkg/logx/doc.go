// Package logx configures heartwatch's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Per-process context (role, pid, session) attached once via With()
package logx

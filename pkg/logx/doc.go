// Package logx configures remindbot's structured logging.
//
// A small wrapper (logx.Logger) over zerolog keeps:
//   - console output readable (short timestamp + short caller)
//   - file output JSON-structured
//   - an optional ops-chat sink (min-level + rate limiting) that forwards
//     warnings to an operator chat through the active transport adapter
package logx

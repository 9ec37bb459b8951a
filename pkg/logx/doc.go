// Package logx configures listingwatch's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured, optionally filtered to a minimum level
//     (errors only by default, so the file doubles as an error log)
package logx

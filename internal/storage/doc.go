// Package storage provides the bot's persistence layer.
//
// It stores:
//   - Server -> notification channel bindings
//   - The last successfully fetched event feed (restored on startup)
//   - Audit log appends (operator actions)
package storage

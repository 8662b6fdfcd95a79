// Package domain defines the gauge lifecycle types and their validation
// rules. Types are plain structs owned by the storage layer; workflows hold
// ids and re-fetch before mutating.
package domain

// Package textutil provides text helpers for filename sanitization and
// machine-safe tokens.
//
// The primary use cases are:
//   - Sanitizing display names into catalog-safe directory names
//   - Building lowercase tokens for notification dedup keys and tags
package textutil

// Package transport is the HTTP client shared by catalogs and the fetcher.
//
// It applies timeouts, the User-Agent and an optional bearer token, and maps
// response statuses onto ErrAuth, ErrNotFound and ErrNetwork so callers can
// decide what is worth retrying.
package transport

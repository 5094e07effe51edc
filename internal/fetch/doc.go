// Package fetch downloads artifacts without ever exposing a partially
// written destination.
//
// A download is streamed into a temporary file next to the destination
// (Stage) and then renamed over it (Commit). Transient network failures are
// retried with a linear backoff. When the filesystem rejects the rename, the
// file is swapped in through go-update, which keeps a backup and rolls back
// on failure but is not atomic: a reader may briefly find no file at the
// destination. Failed stages and commits remove their temporary file and
// leave the previous destination untouched.
package fetch

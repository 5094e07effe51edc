// Package release models what the updater reasons about: versions, update
// channels, remote candidates and the policy deciding which candidate, if
// any, gets installed.
//
// Version is a plain major.minor.patch triple. The zero value means
// "nothing installed yet" and is never treated as a published version.
package release

// Package version exposes build metadata of the updater binary.
//
// Variables Version, Commit, and BuildTime are injected at build time via
// Go ldflags. They have nothing to do with platform or configuration
// versions, which live in the release package.
package version

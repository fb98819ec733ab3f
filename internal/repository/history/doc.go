// Package history keeps a journal of downloaded archives in SQLite.
package history

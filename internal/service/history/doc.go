// Package history prints the download journal kept by the updater.
package history

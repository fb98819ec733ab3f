// Package updater downloads 1C platform distributions and configuration
// update chains into the local template tree.
//
// The installed version is taken from the newest version directory on disk
// (or the start version from settings), the update service is asked for
// anything newer, and every archive it offers is saved and optionally
// extracted. Configuration chains are downloaded step by step in the order
// the service returns them, because intermediate releases cannot be skipped.
package updater

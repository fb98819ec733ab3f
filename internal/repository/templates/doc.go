// Package templates manages the local template tree: it finds the newest
// installed version directory and persists downloaded archives into it.
package templates

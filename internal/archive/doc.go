// Package archive extracts downloaded zip distributions.
//
// Entry names are normalized to UTF-8 and to the local path separator.
// A failure to write one entry is logged and the remaining entries are still
// extracted: a partially unpacked template is better than none.
package archive

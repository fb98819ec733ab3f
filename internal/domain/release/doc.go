// Package release models 1C release versions.
//
// A version is exactly four non-negative integers (major.minor.patch.build)
// compared component by component. Parsing never panics: malformed input
// yields ok == false, and callers decide whether that is worth a log line.
package release

// Package domain defines the core domain types of the pipeline status demo.
//
// Concept-oriented files (status.go, schedule.go, errors.go) hold shared types
// and contracts only. The notifier and display packages both depend on it, so it
// must not import either of them.
package domain

// Package ir provides the value types shared by every viewflow package.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - ScopeID, Path and StateID are comparable and usable as map keys
//   - Path values are immutable; Append always returns a new Path
//   - Declared state values use the constrained Value model (no floats)
//   - All JSON tags use snake_case
package ir

// Package store implements the reactive state cell at the heart of viewflow.
//
// A Store[S] owns one value of S, a table of reducers keyed by action kind,
// an ordered subscriber list, a non-owning link to its parent, and a map of
// child stores (its sub-states) keyed by StateID. The parent link is a slot
// in an Arena, so a destroyed parent simply stops resolving.
//
// State is replaced wholesale on every dispatch: the reducer mutates a draft
// cloned from the current snapshot, and subscribers receive the new and old
// snapshots as distinct values. A reducer result equal to the current
// snapshot is discarded and nobody is notified.
//
// Lifetime is reference counted by external holders (Handle). When the last
// holder releases, destroy hooks run exactly once: the user hook first, then
// the internal ones that detach the store from its parent and registry.
package store

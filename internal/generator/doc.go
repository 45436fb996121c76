// Package generator runs one generation of a site.
//
// A run reads every source location into a node tree, assigns output
// destinations, loads the previous cache snapshot and renders the nodes the
// item tracker reports as changed. Rendering runs concurrently; failures of
// single nodes are collected in the Report while the rest of the site is
// still written. Lifecycle events are published on a hooks.Bus, and the
// tracker state and cache persistence are wired through those events.
package generator

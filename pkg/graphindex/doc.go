// Package graphindex implements the graph component of the data model
// (spec §3 "Graph", §2 "Graph Index"): a directed, optionally weighted
// edge set over PK vertices, kept as two adjacency projections —
// outgoing and incoming — each an equality index keyed by vertex PK, plus
// a weighted-shortest-path helper layered on top of them. BFS traversal
// itself is the query engine's concern (spec §4.6.3); this package only
// exposes the adjacency primitives a traversal walks.
package graphindex

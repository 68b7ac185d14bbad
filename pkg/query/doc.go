// Package query implements the reduced AQL query engine (spec §4.6):
// a lexer built on participle and a hand-rolled recursive-descent
// parser, translation of the parsed AST into exactly one of
// {ConjunctiveQuery, DisjunctiveQuery, JoinQuery, TraversalQuery,
// VectorGeoQuery} plus a list of CTE executions (types.QueryContentGeo
// is declared, but no query translates to it and the executor has no
// case for it), a cardinality-sampling optimizer, and an executor that
// runs the chosen shape against pkg/kv, pkg/secindex, pkg/graphindex,
// and pkg/vectorindex.
package query

// Package dag is the graph layer of recipegrid. It expands the recipes of a
// config.Model over the requested variant matrix into build nodes, links each
// node to the build nodes producing its run dependencies, and represents the
// dependencies nothing in the run produces as external nodes.
//
// Edges point from producer to consumer. The graph is validated to be acyclic
// before Build returns and is only read afterwards.
package dag

// Package brain defines the data model and contracts for the brain memory
// engine: memory nodes, typed connections, the storage and embedding
// interfaces, and the engine configuration.
//
// The memory system organizes knowledge the way a brain does:
//   - Layers: short_term, long_term, episodic, procedural, semantic
//   - States: fresh, active, stable, consolidated, dormant
//   - Connections: typed, strength-weighted edges between nodes
//
// Nodes are created by ingestion, labeled by the classify package, linked by
// the connect package, promoted and decayed by the lifecycle package, and
// retrieved by the query package. The engine package wires all of it together.
//
// Storage backends:
//   - store/memstore: in-memory store for local use and tests
//   - store/sqlite: durable store on SQLite
//
// Embedding backends:
//   - embedder/mock: deterministic bag-of-words embedder (offline, tests)
//   - embedder/onnx: all-MiniLM-L6-v2 via ONNX Runtime (build tag "onnx")
package brain

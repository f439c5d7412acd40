// Package memory is the conversation context engine.
//
// Every incoming message is answered with awareness of earlier exchanges
// without re-sending unbounded history downstream. The engine keeps each
// exchange in two tiers and merges them at read time.
//
// Architecture:
//   - HashCache: fast, short-retention per-user hash (ristretto in-process, Redis networked)
//   - VectorIndex: durable similarity index scoped by owner (chromem-go, SQLite)
//   - Embedder: text-to-vector conversion (hashing for offline use, ONNX all-MiniLM-L6-v2)
//   - RecencyStore / SimilarityIndex: tier adapters over the collaborators above
//   - RelevanceFilter: embedding-based ranking of recent exchanges
//   - Assembler: merge, chronological order, character budget, confidence
//   - Processor: chunking, topics, patterns and summary on top of the Assembler
//   - Lifecycle: clearing both tiers and trimming the cache
//   - ConversationManager: the inbound API used by the message-handling layer
//
// Failure policy:
//   - Store and embedding failures are logged and degrade the result
//     (recency-only, similarity-only or empty context); read paths never fail.
//   - Patching an unknown exchange returns core.ErrNotFound.
//   - A clear that fails on either tier returns *core.PartialClearError;
//     Total reports that neither tier was cleared.
package memory

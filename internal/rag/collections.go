package rag

// Default collection names for the three knowledge partitions. The set is a
// fixed enumeration known to callers; collections are never discovered at
// runtime.
const (
	// CollectionLaw holds statutes and legal reference material.
	CollectionLaw = "law_reference_db"

	// CollectionCases holds past case history and rulings.
	CollectionCases = "case_history_db"

	// CollectionClient holds individual client case documents. Queries against
	// this collection are scoped by client_case_id so one client's documents
	// never leak into another client's results.
	CollectionClient = "client_cases_db"
)

// ScopeKey is the metadata key used to isolate client case documents.
const ScopeKey = "client_case_id"

// AllCollections returns the full default collection set in query order.
func AllCollections() []string {
	return []string{CollectionLaw, CollectionCases, CollectionClient}
}

// ReferenceCollections returns the collections holding shared knowledge
// (law and past cases), excluding per-client documents. Analytics retrieval
// uses this set.
func ReferenceCollections() []string {
	return []string{CollectionLaw, CollectionCases}
}

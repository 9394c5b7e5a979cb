package cache

// opClass tags which of the four L1 policies (§4.3) a write falls
// into. The coordinator computes this once per operation and hands it,
// along with the L2 ChangeResult, to a single shared tail (afterWrite)
// so the "apply L1 policy, then maybe publish" algorithm only lives in
// one place.
type opClass int

const (
	// classSetOnSuccess: set/replace/replaceIfEqual/increment with a
	// known new value. On L2 change, write the same value+ttl to L1.
	classSetOnSuccess opClass = iota
	// classSetOnFullSuccess: listAdd/listRemove when every requested
	// item was applied. On L2 change, apply the same list delta to L1.
	classSetOnFullSuccess
	// classRemoveToInvalidate: setIfHigher/setIfLower, increments whose
	// resulting value semantics aren't locally reproducible, and
	// listAdd/listRemove on partial success. On L2 change, evict L1.
	classRemoveToInvalidate
	// classRemoveOnFailure: replace/replaceIfEqual/set that fail. Only
	// class whose "L2 unchanged" branch still touches L1 (evicts it).
	classRemoveOnFailure
)

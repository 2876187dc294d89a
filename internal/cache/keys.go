package cache

// Redis keys follow app:{module}:{entity}:{id...}.
const (
	AppPrefix = "cvr"

	// KeyEmbeddingVector holds a JSON vector. Format: cvr:embedding:vector:{model}:{contentHash}
	KeyEmbeddingVector = AppPrefix + ":embedding:vector:%s:%s"

	// KeyEmbeddingRef maps text to the embedding row that already holds its
	// vector. Format: cvr:embedding:ref:{model}:{contentHash}
	KeyEmbeddingRef = AppPrefix + ":embedding:ref:%s:%s"

	// KeySearchResult holds a serialized search response. Format: cvr:search:result:{fingerprint}
	KeySearchResult = AppPrefix + ":search:result:%s"

	// KeyRateLimit is a sorted set of request markers. Format: cvr:ratelimit:{tenant}:{action}
	KeyRateLimit = AppPrefix + ":ratelimit:%s:%s"

	// KeyQueue is the pending list of a job queue. Format: cvr:queue:{name}
	KeyQueue = AppPrefix + ":queue:%s"

	// KeyQueueProcessing lists jobs handed to a worker and not yet settled.
	// Format: cvr:queue:{name}:processing
	KeyQueueProcessing = AppPrefix + ":queue:%s:processing"

	// KeyQueueLeases scores processing entries by redelivery deadline (unix ms).
	// Format: cvr:queue:{name}:leases
	KeyQueueLeases = AppPrefix + ":queue:%s:leases"

	// KeyQueueDedup guards a queued idempotency key. Format: cvr:queue:{name}:dedup:{key}
	KeyQueueDedup = AppPrefix + ":queue:%s:dedup:%s"
)

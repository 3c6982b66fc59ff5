package config

const (
	// TopicEmbeddingJobs is the NSQ topic carrying queued embedding pipeline runs.
	TopicEmbeddingJobs = "embeddings.job"

	// ChannelEmbeddingWorkers is the channel shared by every job consumer.
	ChannelEmbeddingWorkers = "workers"
)

package pipeline

type EventKind int

const (
	// EventFetched carries the number of pending chunks in Total.
	EventFetched EventKind = iota
	// EventBatchEmbedded is emitted after each embedding batch; Done counts
	// chunks embedded so far.
	EventBatchEmbedded
	// EventChunkPersisted is emitted for every chunk write, successful or not.
	EventChunkPersisted
	// EventProgress is emitted every ReportInterval chunk writes.
	EventProgress
	// EventDocumentUpdated is emitted for every document status write.
	EventDocumentUpdated
)

func (k EventKind) String() string {
	switch k {
	case EventFetched:
		return "fetched"
	case EventBatchEmbedded:
		return "batch_embedded"
	case EventChunkPersisted:
		return "chunk_persisted"
	case EventProgress:
		return "progress"
	case EventDocumentUpdated:
		return "document_updated"
	default:
		return "unknown"
	}
}

// Event describes one step of a run. ID and Err are set for per-item events.
type Event struct {
	Kind  EventKind
	Done  int
	Total int
	ID    string
	Err   error
}

// ProgressFunc observes a run. It is called synchronously from Run.
type ProgressFunc func(Event)

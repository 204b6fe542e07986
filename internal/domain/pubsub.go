package domain

// Notifier is told about the full resolved state of an entity after it was
// replaced wholesale.
type Notifier interface {
	NotifyEntity(entity string, props Properties)
}

// Snapshotter yields a consistent copy of the whole world.
type Snapshotter interface {
	Snapshot() World
}

// Publisher fans an already encoded message out to every live subscriber.
type Publisher interface {
	Publish(message []byte)
}

// EntityStore is the shared world as seen by sessions and HTTP handlers.
type EntityStore interface {
	Snapshotter
	Update(entity, key string, value any)
	Merge(entity string, props Properties) Properties
	Set(entity string, data Properties)
	Clear()
	Get(entity string) Properties
	Len() int
}

package match

const (
	// EngineVersion is the current version of the matching engine
	EngineVersion = "v1.0.0"

	// DefaultRingCapacity is the default size of the command ring buffer.
	// Must be a power of two.
	DefaultRingCapacity = 32768
)

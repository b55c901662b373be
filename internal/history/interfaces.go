// Package history keeps a local log of processed requests and their
// transcripts.
package history

// Store defines the operations the CLI needs from the history log.
// This interface enables dependency injection and easier testing.
type Store interface {
	// Save appends an entry
	Save(entry Entry) error

	// List returns the most recent entries first. A limit of 0 means all;
	// search filters on input and command text.
	List(limit int, search string) ([]Entry, error)

	// Get retrieves one entry by id or unique id prefix
	Get(id string) (*Entry, error)

	// Clear removes all entries
	Clear() error

	// Close releases the database
	Close() error
}

// Ensure concrete type implements the interface
var _ Store = (*SQLiteStore)(nil)

package translate

import (
	"github.com/jackzampolin/honyaku/internal/document"
)

// EventKind identifies an Event.
type EventKind int

const (
	// EventContent carries a streamed chunk for a unit.
	EventContent EventKind = iota
	// EventPageComplete reports a page's classification after translation.
	EventPageComplete
	// EventFinished reports that the last page was passed; the translation
	// is ready to be saved.
	EventFinished
	// EventAborted reports that in-flight work was cancelled.
	EventAborted
)

func (k EventKind) String() string {
	switch k {
	case EventContent:
		return "content"
	case EventPageComplete:
		return "page_complete"
	case EventFinished:
		return "finished"
	case EventAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Event is a notification from a running session.
type Event struct {
	Kind     EventKind
	Page     int
	Part     int
	Chunk    string
	Activity document.Activity
}

package translate

import (
	"github.com/jackzampolin/honyaku/internal/providers"
)

// Connection is the session's link to a backend: Disconnected or Connected.
type Connection interface {
	isConnection()
}

// Disconnected means no backend is available.
type Disconnected struct{}

// Connected holds a backend, its models and the selected model.
type Connected struct {
	Backend providers.Backend
	Models  []string
	Model   string
}

func (Disconnected) isConnection() {}
func (Connected) isConnection()    {}

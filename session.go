package mdt

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session describes the open connection owned by a Controller.
type Session struct {
	ID       string      `json:"id" yaml:"id"`
	Backend  BackendKind `json:"backend" yaml:"backend"`
	Port     string      `json:"port" yaml:"port"`
	Model    string      `json:"model,omitempty" yaml:"model,omitempty"`
	Axes     []Axis      `json:"axes" yaml:"axes"`
	FellBack bool        `json:"fell_back,omitempty" yaml:"fell_back,omitempty"`
	OpenedAt time.Time   `json:"opened_at" yaml:"opened_at"`
}

// HasAxis reports whether the connected model drives axis a.
func (s Session) HasAxis(a Axis) bool {
	for _, x := range s.Axes {
		if x == a {
			return true
		}
	}
	return false
}

// axesForModel returns the outputs of a model. MDT694 units are single
// channel; MDT693 and unidentified units are driven as three-axis.
func axesForModel(model string) []Axis {
	if len(model) >= 6 && model[:6] == "MDT694" {
		return []Axis{AxisX}
	}
	return append([]Axis(nil), AllAxes...)
}

// registry tracks the ports that have a live session in this process.
type registry struct {
	mu    sync.Mutex
	ports map[string]string // canonical port -> session id
}

var sessions = &registry{ports: make(map[string]string)}

// canonicalPort resolves /dev/serial/by-id style aliases so that two names
// for one device collide.
func canonicalPort(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	return filepath.Clean(p)
}

// acquire reserves port for a new session and returns its id.
func (r *registry) acquire(port string) (string, error) {
	key := canonicalPort(port)

	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.ports[key]; ok {
		return "", fmt.Errorf("%w: %s (session %s)", ErrPortBusy, port, owner)
	}
	id := uuid.NewString()
	r.ports[key] = id
	return id, nil
}

// release frees port if id still owns it.
func (r *registry) release(port, id string) {
	key := canonicalPort(port)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ports[key] == id {
		delete(r.ports, key)
	}
}

func (r *registry) held(port string) bool {
	key := canonicalPort(port)

	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.ports[key]
	return ok
}

package device

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/smazurov/fakewebcam/internal/vb2"
)

// Node is a device node handed out by a Host.
type Node struct {
	Name  string
	Minor int
	Path  string
}

// Host is the capture framework a Device registers with.
type Host interface {
	RegisterParent(name string) error
	UnregisterParent(name string)
	AllocNode(name string) (*Node, error)
	ReleaseNode(node *Node)
	RegisterNode(node *Node, dev *Device) error
	UnregisterNode(node *Node)
}

// DefaultMaxNodes is the number of video node minors a Registry hands out.
const DefaultMaxNodes = 64

// Registry is an in-memory Host. Registered nodes appear as /dev/videoN paths
// that can be opened.
type Registry struct {
	mu       sync.Mutex
	maxNodes int
	parents  map[string]int
	nodes    map[int]*Device
	paths    map[string]int
	logger   *slog.Logger
}

// NewRegistry creates a registry with room for maxNodes nodes.
func NewRegistry(maxNodes int, logger *slog.Logger) *Registry {
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		maxNodes: maxNodes,
		parents:  make(map[string]int),
		nodes:    make(map[int]*Device),
		paths:    make(map[string]int),
		logger:   logger,
	}
}

// RegisterParent registers a parent device. Names are reference counted.
func (r *Registry) RegisterParent(name string) error {
	if name == "" {
		return vb2.NewError(vb2.ErrCodeInvalidArgument, "parent name is empty", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parents[name]++
	return nil
}

// UnregisterParent drops a parent registration.
func (r *Registry) UnregisterParent(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.parents[name] <= 1 {
		delete(r.parents, name)
		return
	}
	r.parents[name]--
}

// AllocNode allocates an unregistered node.
func (r *Registry) AllocNode(name string) (*Node, error) {
	return &Node{Name: name, Minor: -1}, nil
}

// ReleaseNode frees a node that is no longer registered.
func (r *Registry) ReleaseNode(node *Node) {
	node.Minor = -1
	node.Path = ""
}

// RegisterNode assigns the lowest free minor to node and makes it openable.
func (r *Registry) RegisterNode(node *Node, dev *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for minor := range r.maxNodes {
		if _, used := r.nodes[minor]; used {
			continue
		}
		node.Minor = minor
		node.Path = fmt.Sprintf("/dev/video%d", minor)
		r.nodes[minor] = dev
		r.paths[node.Path] = minor
		r.logger.Info("Registered video node", "name", node.Name, "path", node.Path)
		return nil
	}
	return vb2.NewError(vb2.ErrCodeResourceExhausted, "no free video node minor",
		map[string]any{"max_nodes": r.maxNodes})
}

// UnregisterNode removes a node so it can no longer be opened.
func (r *Registry) UnregisterNode(node *Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if dev, ok := r.nodes[node.Minor]; ok && dev != nil {
		delete(r.nodes, node.Minor)
		delete(r.paths, node.Path)
		r.logger.Info("Unregistered video node", "name", node.Name, "path", node.Path)
	}
}

// Lookup returns the device registered at path.
func (r *Registry) Lookup(path string) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	minor, ok := r.paths[path]
	if !ok {
		return nil, false
	}
	return r.nodes[minor], true
}

// Devices returns every registered device ordered by minor.
func (r *Registry) Devices() []*Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	minors := make([]int, 0, len(r.nodes))
	for minor := range r.nodes {
		minors = append(minors, minor)
	}
	sort.Ints(minors)
	devs := make([]*Device, 0, len(minors))
	for _, minor := range minors {
		devs = append(devs, r.nodes[minor])
	}
	return devs
}

// Open opens the device node at path. flags may include O_NONBLOCK.
func (r *Registry) Open(path string, flags int) (*File, error) {
	dev, ok := r.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("open %s: no such device", path)
	}
	return dev.Open(flags)
}

package wsgateway

import (
	"sync"

	"github.com/mohamedkhairy/feedmix/internal/models"
)

// ConnectionRegistry indexes open connections by id and by ranking topic.
// Connections without any subscription sit in their own set and receive
// every update.
type ConnectionRegistry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	byTopic     map[string]map[string]*Connection // topic -> connection_id -> connection
	topicsOf    map[string]map[string]struct{}    // connection_id -> topics
	unfiltered  map[string]*Connection
}

// NewConnectionRegistry creates an empty registry
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		connections: make(map[string]*Connection),
		byTopic:     make(map[string]map[string]*Connection),
		topicsOf:    make(map[string]map[string]struct{}),
		unfiltered:  make(map[string]*Connection),
	}
}

// Add registers a connection with no subscriptions
func (r *ConnectionRegistry) Add(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections[conn.ID] = conn
	r.unfiltered[conn.ID] = conn
}

// Remove drops a connection and its subscriptions. It reports whether the
// connection was registered.
func (r *ConnectionRegistry) Remove(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[connectionID]; !exists {
		return false
	}
	for topic := range r.topicsOf[connectionID] {
		r.dropLocked(topic, connectionID)
	}
	delete(r.topicsOf, connectionID)
	delete(r.unfiltered, connectionID)
	delete(r.connections, connectionID)
	return true
}

// Subscribe adds a ranking topic to a registered connection
func (r *ConnectionRegistry) Subscribe(connectionID, topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.connections[connectionID]
	if !exists {
		return false
	}
	if r.byTopic[topic] == nil {
		r.byTopic[topic] = make(map[string]*Connection)
	}
	r.byTopic[topic][connectionID] = conn
	if r.topicsOf[connectionID] == nil {
		r.topicsOf[connectionID] = make(map[string]struct{})
	}
	r.topicsOf[connectionID][topic] = struct{}{}
	delete(r.unfiltered, connectionID)
	return true
}

// Unsubscribe drops a ranking topic. A connection left without topics
// goes back to receiving everything.
func (r *ConnectionRegistry) Unsubscribe(connectionID, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.connections[connectionID]
	if !exists {
		return
	}
	r.dropLocked(topic, connectionID)
	if topics := r.topicsOf[connectionID]; topics != nil {
		delete(topics, topic)
		if len(topics) == 0 {
			delete(r.topicsOf, connectionID)
			r.unfiltered[connectionID] = conn
		}
	}
}

func (r *ConnectionRegistry) dropLocked(topic, connectionID string) {
	if conns, ok := r.byTopic[topic]; ok {
		delete(conns, connectionID)
		if len(conns) == 0 {
			delete(r.byTopic, topic)
		}
	}
}

// IsSubscribed reports whether a connection holds topic
func (r *ConnectionRegistry) IsSubscribed(connectionID, topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.topicsOf[connectionID][topic]
	return ok
}

// Recipients returns the connections an update goes to: subscribers of its
// kind and date, subscribers of every date of its kind, and connections
// with no subscriptions. Each connection appears once.
func (r *ConnectionRegistry) Recipients(update models.ToplistUpdate) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]*Connection, len(r.unfiltered))
	for id, conn := range r.unfiltered {
		seen[id] = conn
	}
	for _, t := range []string{topic(update.Kind, update.Date), topic(update.Kind, "")} {
		for id, conn := range r.byTopic[t] {
			seen[id] = conn
		}
	}

	recipients := make([]*Connection, 0, len(seen))
	for _, conn := range seen {
		recipients = append(recipients, conn)
	}
	return recipients
}

// Get retrieves a connection by ID
func (r *ConnectionRegistry) Get(connectionID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, exists := r.connections[connectionID]
	return conn, exists
}

// GetAll retrieves all connections
func (r *ConnectionRegistry) GetAll() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connections := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		connections = append(connections, conn)
	}
	return connections
}

// Count returns the total number of connections
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// TopicCounts returns the number of subscribers per ranking topic
func (r *ConnectionRegistry) TopicCounts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int, len(r.byTopic))
	for t, conns := range r.byTopic {
		counts[t] = len(conns)
	}
	return counts
}

package core

// Client is one WebSocket session as seen by the core layer.
type Client struct {
	ID       string
	UserID   string // identity of the validated token
	Name     string
	Commands chan *Command
	Events   chan *Event

	// Owned by the hub goroutine.
	authenticated bool
	rooms         map[string]struct{}
	quit          chan struct{}
}

// NewClient constructs a client with initialized channels.
func NewClient(id, userID, name string) *Client {
	if name == "" {
		name = userID
	}
	return &Client{
		ID:       id,
		UserID:   userID,
		Name:     name,
		Commands: make(chan *Command, 16),
		Events:   make(chan *Event, 64),
		rooms:    make(map[string]struct{}),
		quit:     make(chan struct{}),
	}
}

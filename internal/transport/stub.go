package transport

// StubClient is a no-op transport for environments with no networking at
// all (offline single-player, headless smoke tests). It reports itself
// connected and never delivers an event.
type StubClient struct{}

// NewStubClient returns the no-op client transport.
func NewStubClient() *StubClient { return &StubClient{} }

// Connect succeeds without doing anything.
func (s *StubClient) Connect(host string, port int) error { return nil }

// Disconnect does nothing.
func (s *StubClient) Disconnect() {}

// Send swallows the message.
func (s *StubClient) Send(data []byte, reliable bool) error { return nil }

// Poll never has events.
func (s *StubClient) Poll() (Event, bool) { return Event{}, false }

// Connected always reports true.
func (s *StubClient) Connected() bool { return true }

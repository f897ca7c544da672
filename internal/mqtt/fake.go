package mqtt

// FakePublisher records published status and events for test assertions.
type FakePublisher struct {
	// Statuses contains every status that was published.
	Statuses []Status

	// Messages contains the state messages that were published.
	Messages []Message

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by PublishStatus.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	topics Topics
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{topics: NewTopics("test")}
}

// PublishStatus records the status and the messages it maps to.
func (f *FakePublisher) PublishStatus(status Status) error {
	if f.PublishError != nil {
		return &ChannelFault{Op: "publish", Err: f.PublishError}
	}

	f.Statuses = append(f.Statuses, status)
	f.Messages = append(f.Messages, f.topics.StatusMessages(status)...)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return &ChannelFault{Op: "publish", Err: f.PublishSystemError}
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// LastStatus returns the most recently published status.
func (f *FakePublisher) LastStatus() (Status, bool) {
	if len(f.Statuses) == 0 {
		return Status{}, false
	}
	return f.Statuses[len(f.Statuses)-1], true
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.Statuses = nil
	f.Messages = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}

package mqtt

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	// Events contains all key events that were published.
	Events []KeyEvent

	// Payloads contains the JSON payloads of key events.
	Payloads [][]byte

	// Calibrations contains all calibration reports that were published.
	Calibrations []CalibrationReport

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishCalibrationError, if set, will be returned by PublishCalibration.
	PublishCalibrationError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the key event.
func (f *FakePublisher) Publish(event KeyEvent) error {
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishCalibration records the calibration report.
func (f *FakePublisher) PublishCalibration(report CalibrationReport) error {
	if f.PublishCalibrationError != nil {
		return f.PublishCalibrationError
	}
	f.Calibrations = append(f.Calibrations, report)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
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

// Reset clears recorded messages and injected errors.
func (f *FakePublisher) Reset() {
	*f = FakePublisher{}
}

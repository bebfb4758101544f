package mqtt

import "errors"

// Session errors. Use errors.Is to test for them.
var (
	// ErrNotConnected is returned when a session operation runs before Open or after Close.
	ErrNotConnected = errors.New("mqtt: session not open")

	// ErrConnectionFailed is returned when the broker refuses or never answers a connect.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a publish is not accepted.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscription is not accepted.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrSessionLost is returned by Receive when the broker connection drops.
	ErrSessionLost = errors.New("mqtt: session lost")

	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrUnsupported is returned by transports that lack an operation.
	ErrUnsupported = errors.New("mqtt: operation not supported by transport")
)

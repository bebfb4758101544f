package mqtt

// Broker topics shared by the endpoints.
const (
	// TopicCommand carries switch commands ("rsw03_on", "rsw03_off").
	TopicCommand = "AC"

	// TopicTelemetry carries environmental readings as JSON.
	TopicTelemetry = "BME"
)

package mqttpub

// Topic layout. Status is retained so late subscribers immediately see
// whether a run is active; run events are fire-and-forget.
const (
	// TopicStatus carries the retained service status.
	TopicStatus = "meterblink/status"

	// TopicRunEvents carries run start/finish events.
	TopicRunEvents = "meterblink/runs"
)

package model

import "time"

// Unknown is the placeholder for metadata the host could not provide.
const Unknown = "unknown"

// Payload is the immutable unit submitted to the collector at the end of a session.
// JSON names follow the collector's intake schema.
type Payload struct {
	SessionID           string       `json:"sessionId"`
	InteractionData     Buffers      `json:"interactionData"`
	Features            Features     `json:"features"`
	SessionDuration     int64        `json:"sessionDuration"`
	UserAgent           string       `json:"userAgent"`
	ScreenResolution    string       `json:"screenResolution"`
	ConnectionType      string       `json:"connectionType"`
	ConnectionStability string       `json:"connectionStability"`
	IPAddress           string       `json:"ipAddress"`
	Geolocation         string       `json:"geolocation"`
	DeviceOrientation   *Orientation `json:"deviceOrientation"`
	DeviceMotion        *Motion      `json:"deviceMotion"`
	CapturedAt          time.Time    `json:"capturedAt"`
}

// Submission is a payload accepted by the collector.
type Submission struct {
	ID         string    `json:"id"`
	Payload    Payload   `json:"payload"`
	ReceivedAt time.Time `json:"receivedAt"`
}

package aggregate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/okian/nocaptcha/internal/adapters/lookup"
	"github.com/okian/nocaptcha/internal/domain/model"
)

// Connection is what the host reports about its network link.
type Connection struct {
	EffectiveType string   `json:"effectiveType"`
	RTT           *float64 `json:"rtt,omitempty"`
}

// Device is the static environment metadata read once per payload.
type Device struct {
	UserAgent    string      `json:"userAgent"`
	ScreenWidth  int         `json:"screenWidth"`
	ScreenHeight int         `json:"screenHeight"`
	Connection   *Connection `json:"connection,omitempty"`
}

// Environment gives read access to host metadata.
type Environment interface {
	Device() Device
}

// StaticEnvironment is an Environment with fixed metadata.
type StaticEnvironment Device

// Device returns the fixed metadata.
func (e StaticEnvironment) Device() Device { return Device(e) }

// Locator resolves the client's public ip and coarse location.
type Locator interface {
	LookupIP(ctx context.Context) lookup.Result[string]
	LookupGeo(ctx context.Context, ip string) lookup.Result[lookup.Geo]
}

func userAgent(d Device) string {
	if d.UserAgent == "" {
		return model.Unknown
	}
	return d.UserAgent
}

// screenResolution renders "WxH", or unknown when the host reported nothing.
func screenResolution(d Device) string {
	if d.ScreenWidth <= 0 && d.ScreenHeight <= 0 {
		return model.Unknown
	}
	return fmt.Sprintf("%dx%d", d.ScreenWidth, d.ScreenHeight)
}

func connectionType(d Device) string {
	if d.Connection == nil || d.Connection.EffectiveType == "" {
		return model.Unknown
	}
	return d.Connection.EffectiveType
}

// connectionStability is the reported round-trip time in milliseconds.
func connectionStability(d Device) string {
	if d.Connection == nil || d.Connection.RTT == nil {
		return model.Unknown
	}
	return strconv.FormatFloat(*d.Connection.RTT, 'f', -1, 64)
}

package status

import (
	"encoding/json"
	"time"
)

// DoorJSON is the body served on /door.json.
// Null fields mean "no open episode" and "no alert sent".
type DoorJSON struct {
	State             string `json:"state"`
	SecsSinceNotified *int64 `json:"secs_since_notified"`
	OpenFor           *int64 `json:"open_for"`
}

// StatusJSON is the top-level JSON envelope for MQTT system events.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event             string       `json:"event,omitempty"`
	Reason            string       `json:"reason,omitempty"`
	State             string       `json:"state"`
	OpenForSeconds    *int64       `json:"open_for_seconds"`
	SecsSinceNotified *int64       `json:"secs_since_notified"`
	UptimeSeconds     int64        `json:"uptime_seconds"`
	StartTime         string       `json:"start_time"`
	Timestamp         string       `json:"timestamp"`
	MQTT              MQTTStatus   `json:"mqtt"`
	Network           *NetworkJSON `json:"network,omitempty"`
	Host              *HostJSON    `json:"host,omitempty"`
	Config            ConfigJSON   `json:"config"`
}

// HostJSON is the JSON representation of host stats.
type HostJSON struct {
	UptimeSeconds int64  `json:"uptime_seconds"`
	MemTotalBytes uint64 `json:"mem_total_bytes"`
	MemFreeBytes  uint64 `json:"mem_free_bytes"`
	MemUsedBytes  uint64 `json:"mem_used_bytes"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	SampleMs     int64  `json:"sample_ms"`
	NotifyPollMs int64  `json:"notify_poll_ms"`
	ThresholdMs  int64  `json:"threshold_ms"`
	ClosePolicy  string `json:"close_policy"`
	Broker       string `json:"broker"`
	HTTPAddr     string `json:"http_addr"`
}

func wholeSeconds(d time.Duration, ok bool) *int64 {
	if !ok {
		return nil
	}
	secs := int64(d / time.Second)
	return &secs
}

func stateString(snap Snapshot) string {
	if snap.Door.Door == "" {
		return "Unknown"
	}
	return string(snap.Door.Door)
}

// BuildDoorJSON returns the /door.json document for snap.
func BuildDoorJSON(snap Snapshot) DoorJSON {
	return DoorJSON{
		State:             stateString(snap),
		SecsSinceNotified: wholeSeconds(snap.SinceNotified()),
		OpenFor:           wholeSeconds(snap.OpenFor()),
	}
}

// FormatDoorJSON returns the indented /door.json body for snap.
func FormatDoorJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(BuildDoorJSON(snap), "", "  ")
	return data
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		State:             stateString(snap),
		OpenForSeconds:    wholeSeconds(snap.OpenFor()),
		SecsSinceNotified: wholeSeconds(snap.SinceNotified()),
		UptimeSeconds:     int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:         snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:         snap.Now.UTC().Format(time.RFC3339),
		MQTT:              MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			SampleMs:     snap.Config.SampleMs,
			NotifyPollMs: snap.Config.NotifyPollMs,
			ThresholdMs:  snap.Config.ThresholdMs,
			ClosePolicy:  snap.Config.ClosePolicy,
			Broker:       snap.Config.Broker,
			HTTPAddr:     snap.Config.HTTPAddr,
		},
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	if snap.Host != nil {
		inner.Host = &HostJSON{
			UptimeSeconds: int64(snap.Host.Uptime / time.Second),
			MemTotalBytes: snap.Host.MemTotal,
			MemFreeBytes:  snap.Host.MemFree,
			MemUsedBytes:  snap.Host.MemUsed(),
		}
	}
	return inner
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

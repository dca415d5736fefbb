package message

import (
	"bytes"
	"encoding/json"

	"github.com/NOAA-OWP/DMOD-sub000/errors"
)

// EventType discriminates inbound messages.
type EventType string

// Message event types
const (
	EventSessionInit        EventType = "SESSION_INIT"
	EventModelExecRequest   EventType = "MODEL_EXEC_REQUEST"
	EventSchedulerRequest   EventType = "SCHEDULER_REQUEST"
	EventInformationUpdate  EventType = "INFORMATION_UPDATE"
	EventMetadata           EventType = "METADATA"
	EventPartitionRequest   EventType = "PARTITION_REQUEST"
	EventEvaluationRequest  EventType = "EVALUATION_REQUEST"
	EventCalibrationRequest EventType = "CALIBRATION_REQUEST"
	EventDatasetManagement  EventType = "DATASET_MANAGEMENT"
	EventDataTransmission   EventType = "DATA_TRANSMISSION"
	EventInvalid            EventType = "INVALID"
)

// EventTypes lists every event type, INVALID last.
var EventTypes = []EventType{
	EventSessionInit, EventModelExecRequest, EventSchedulerRequest, EventInformationUpdate, EventMetadata,
	EventPartitionRequest, EventEvaluationRequest, EventCalibrationRequest, EventDatasetManagement,
	EventDataTransmission, EventInvalid,
}

// ParseEventType maps a discriminator to its event type. Names match
// exactly; anything else, including the empty string, is INVALID.
func ParseEventType(s string) EventType {
	e := EventType(s)
	for _, known := range EventTypes {
		if e == known {
			return e
		}
	}
	return EventInvalid
}

// Known reports whether e names a real message kind. INVALID is not one.
func (e EventType) Known() bool {
	return e != EventInvalid && ParseEventType(string(e)) == e
}

func (e EventType) String() string {
	return string(e)
}

// Header is the routing information read from a raw message.
type Header struct {
	EventType EventType
	// RawEventType is the discriminator exactly as sent; "" when absent.
	RawEventType string
	Action       DatasetAction
	RawAction    string
}

// ReadHeader reads the discriminator, and for dataset management messages
// the action, from raw. It fails only when raw is not a JSON object.
func ReadHeader(raw []byte) (Header, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Header{EventType: EventInvalid}, errors.Protocol("message is not a JSON object")
	}

	h := Header{RawEventType: rawText(fields["message_event_type"])}
	h.EventType = ParseEventType(h.RawEventType)
	if h.EventType == EventDatasetManagement {
		h.RawAction = rawText(fields["action"])
		h.Action = ParseDatasetAction(h.RawAction)
	}
	return h, nil
}

// rawText returns a JSON string's contents, or any other literal verbatim.
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

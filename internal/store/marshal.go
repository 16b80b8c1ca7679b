package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/critpath/internal/buildinfo"
	"github.com/roach88/critpath/internal/ir"
)

// marshalEvent converts an event to canonical JSON TEXT for storage.
func marshalEvent(ev ir.Event) (string, error) {
	data, err := ir.MarshalCanonical(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	return string(data), nil
}

// unmarshalEvent parses a stored event.
func unmarshalEvent(data string) (ir.Event, error) {
	var ev ir.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return ir.Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return ev, nil
}

// marshalBuildGraphInfo converts the instant to canonical JSON TEXT.
// Canonical JSON has no null, so nil collections are stored empty.
func marshalBuildGraphInfo(info buildinfo.BuildGraphInfo) (string, error) {
	if info.Metadata == nil {
		info.Metadata = map[string]string{}
	}
	if info.CriticalPath2 == nil {
		info.CriticalPath2 = []buildinfo.Entry2{}
	}
	data, err := ir.MarshalCanonical(info)
	if err != nil {
		return "", fmt.Errorf("marshal build graph info: %w", err)
	}
	return string(data), nil
}

func unmarshalBuildGraphInfo(data string) (buildinfo.BuildGraphInfo, error) {
	var info buildinfo.BuildGraphInfo
	if err := json.Unmarshal([]byte(data), &info); err != nil {
		return buildinfo.BuildGraphInfo{}, fmt.Errorf("unmarshal build graph info: %w", err)
	}
	return info, nil
}

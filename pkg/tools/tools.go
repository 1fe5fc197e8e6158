// Package tools registers the MCP tool surface of the three substrate
// servers (memory, runtime, council). Handlers translate between wire
// structs and the service layer. A failed service call is reported in-band
// through the result's error field with a nil Go error; transport errors are
// reserved for serialization bugs.
package tools

import "time"

// EmptyArgs is the input type of tools that take no arguments.
type EmptyArgs struct{}

func boolPtr(b bool) *bool {
	return &b
}

func strPtr(s string) *string {
	return &s
}

// rfc3339 formats database timestamps for the wire.
func rfc3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func rfc3339Ptr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := rfc3339(*t)
	return &s
}

// truncate shortens s for log attributes.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

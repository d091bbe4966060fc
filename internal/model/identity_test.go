package model

import (
	"testing"
	"time"
)

func TestSameMessage(t *testing.T) {
	tests := []struct {
		name     string
		existing Message
		incoming Message
		want     bool
	}{
		{
			"log id match",
			Message{LogID: "log-5"},
			Message{LogID: "log-5"},
			true,
		},
		{
			"log id mismatch wins over provider id match",
			Message{LogID: "log-5", MessageID: "wamid-1"},
			Message{LogID: "log-6", MessageID: "wamid-1"},
			false,
		},
		{
			"provider id match",
			Message{MessageID: "wamid-1", ClientMessageID: "temp-1"},
			Message{MessageID: "wamid-1"},
			true,
		},
		{
			"provider id mismatch wins over client id match",
			Message{MessageID: "wamid-1", ClientMessageID: "temp-1"},
			Message{MessageID: "wamid-2", ClientMessageID: "temp-1"},
			false,
		},
		{
			"client id match",
			Message{ClientMessageID: "temp-1"},
			Message{ClientMessageID: "temp-1", MessageID: "wamid-9"},
			true,
		},
		{
			"generic id match",
			Message{ID: "42"},
			Message{ID: "42"},
			true,
		},
		{
			"existing log id matches incoming generic id",
			Message{LogID: "log-7"},
			Message{ID: "log-7"},
			true,
		},
		{
			"no shared identifiers",
			Message{LogID: "log-7"},
			Message{ClientMessageID: "temp-1"},
			false,
		},
		{
			"fallback composite when neither has ids",
			Message{SentAt: time.UnixMilli(1000), IsInbound: true, Text: "hello"},
			Message{SentAt: time.UnixMilli(1000), IsInbound: true, Text: "hello"},
			true,
		},
		{
			"fallback rejects different direction",
			Message{SentAt: time.UnixMilli(1000), IsInbound: true, Text: "hello"},
			Message{SentAt: time.UnixMilli(1000), IsInbound: false, Text: "hello"},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SameMessage(tt.existing, tt.incoming); got != tt.want {
				t.Errorf("SameMessage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInferInbound(t *testing.T) {
	tests := []struct {
		name      string
		flag      any
		direction string
		status    string
		want      bool
	}{
		{"explicit bool true", true, "out", "", true},
		{"explicit bool false", false, "in", "", false},
		{"explicit string true", "true", "", "", true},
		{"explicit string false", "FALSE", "in", "", false},
		{"direction in", nil, "in", "", true},
		{"direction inbound", nil, "inbound", "", true},
		{"direction incoming", nil, "Incoming", "", true},
		{"direction received", nil, "received", "", true},
		{"direction customer", nil, "customer", "", true},
		{"direction from", nil, "from", "", true},
		{"direction out", nil, "out", "received", false},
		{"status received", nil, "", "received", true},
		{"status incoming", nil, "", "incoming", true},
		{"default outbound", nil, "", "sent", false},
		{"garbage flag falls through", "yes", "in", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferInbound(tt.flag, tt.direction, tt.status); got != tt.want {
				t.Errorf("InferInbound(%v, %q, %q) = %v, want %v", tt.flag, tt.direction, tt.status, got, tt.want)
			}
		})
	}
}

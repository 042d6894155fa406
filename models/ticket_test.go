package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicket_ID(t *testing.T) {
	assert.Equal(t, "T00001", Ticket{Number: 1}.ID())
	assert.Equal(t, "T00042", Ticket{Number: 42}.ID())
	assert.Equal(t, "T123456", Ticket{Number: 123456}.ID())
}

func TestTicket_EncodeDecode(t *testing.T) {
	ticket := Ticket{
		Number:           7,
		CreatedAt:        time.Date(2024, 5, 17, 12, 30, 0, 0, time.UTC),
		SourceChannel:    "C123",
		SourceTs:         "1000.0001",
		OwnerUserID:      "U1",
		OwnerDisplayName: "Jo Average",
	}

	encoded := EncodeTicket(ticket)
	assert.Equal(t, "T00007 2024-05-17T12:30:00Z C123 1000.0001 U1 Jo Average", encoded)

	decoded, err := DecodeTicket(encoded)
	require.NoError(t, err)
	assert.Equal(t, ticket.Number, decoded.Number)
	assert.True(t, ticket.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, ticket.SourceChannel, decoded.SourceChannel)
	assert.Equal(t, ticket.SourceTs, decoded.SourceTs)
	assert.Equal(t, ticket.OwnerUserID, decoded.OwnerUserID)
	assert.Equal(t, ticket.OwnerDisplayName, decoded.OwnerDisplayName)
}

func TestDecodeTicket_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"too few fields", "T00001 2024-05-17T12:30:00Z C123"},
		{"missing T prefix", "00001 2024-05-17T12:30:00Z C123 1000.0001 U1 name"},
		{"bad number", "Tseven 2024-05-17T12:30:00Z C123 1000.0001 U1 name"},
		{"zero number", "T00000 2024-05-17T12:30:00Z C123 1000.0001 U1 name"},
		{"bad time", "T00001 yesterday C123 1000.0001 U1 name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTicket(tt.input)
			assert.Error(t, err)
		})
	}
}

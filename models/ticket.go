package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Ticket is one lottery entry, tied to the message that earned it.
type Ticket struct {
	Number           int
	CreatedAt        time.Time
	SourceChannel    string
	SourceTs         string
	OwnerUserID      string
	OwnerDisplayName string
}

// ID returns the display identifier derived from the ticket number.
func (t Ticket) ID() string {
	return fmt.Sprintf("T%05d", t.Number)
}

// EncodeTicket renders a ticket as a single space-separated line. The display
// name is the last field so it may itself contain spaces.
func EncodeTicket(t Ticket) string {
	return strings.Join([]string{
		t.ID(),
		t.CreatedAt.Format(time.RFC3339),
		t.SourceChannel,
		t.SourceTs,
		t.OwnerUserID,
		t.OwnerDisplayName,
	}, " ")
}

// DecodeTicket parses the output of EncodeTicket.
func DecodeTicket(s string) (Ticket, error) {
	parts := strings.SplitN(s, " ", 6)
	if len(parts) != 6 {
		return Ticket{}, fmt.Errorf("not a ticket string: %q", s)
	}
	if !strings.HasPrefix(parts[0], "T") {
		return Ticket{}, fmt.Errorf("not a ticket string: %q", s)
	}
	number, err := strconv.Atoi(strings.TrimPrefix(parts[0], "T"))
	if err != nil || number < 1 {
		return Ticket{}, fmt.Errorf("invalid ticket number in %q", s)
	}
	createdAt, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		return Ticket{}, fmt.Errorf("invalid ticket creation time in %q: %w", s, err)
	}
	return Ticket{
		Number:           number,
		CreatedAt:        createdAt,
		SourceChannel:    parts[2],
		SourceTs:         parts[3],
		OwnerUserID:      parts[4],
		OwnerDisplayName: parts[5],
	}, nil
}

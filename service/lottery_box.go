package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"pepubot/models"
	"pepubot/storage"
)

// lotteryBoxKey is the store key the box persists itself under.
const lotteryBoxKey = "lottery_box"

// LotteryBox is the ordered collection of outstanding tickets plus the next
// ticket sequence number. Ticket order is insertion order until shuffled and
// is the draw order.
type LotteryBox struct {
	tickets          []models.Ticket
	nextTicketNumber int
	store            *storage.Store
	clock            func() time.Time
}

// GetLotteryBox loads the box from the store, or returns an empty box if none
// has been stored yet. A malformed stored value is an error; the box is never
// reconstructed by guessing.
func GetLotteryBox(ctx context.Context, store *storage.Store, clock func() time.Time) (*LotteryBox, error) {
	value, ok, err := store.GetItem(ctx, lotteryBoxKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &LotteryBox{nextTicketNumber: 1, store: store, clock: clock}, nil
	}
	box, err := DecodeLotteryBox(value)
	if err != nil {
		return nil, err
	}
	box.store = store
	box.clock = clock
	return box, nil
}

// Tickets returns a copy of the tickets in draw order.
func (b *LotteryBox) Tickets() []models.Ticket {
	tickets := make([]models.Ticket, len(b.tickets))
	copy(tickets, b.tickets)
	return tickets
}

// Len returns the number of tickets in the box.
func (b *LotteryBox) Len() int {
	return len(b.tickets)
}

// AddTicket mints a ticket for the given source message, appends it and
// persists the box in place.
func (b *LotteryBox) AddTicket(ctx context.Context, ref models.MessageRef, displayName string) (models.Ticket, error) {
	ticket := models.Ticket{
		Number:           b.nextTicketNumber,
		CreatedAt:        b.clock().Truncate(time.Second),
		SourceChannel:    ref.Channel,
		SourceTs:         ref.Ts,
		OwnerUserID:      ref.Author,
		OwnerDisplayName: displayName,
	}
	b.tickets = append(b.tickets, ticket)
	b.nextTicketNumber++
	if err := b.Save(ctx, false); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

// Shuffle uniformly permutes the tickets and persists the box in place.
func (b *LotteryBox) Shuffle(ctx context.Context) error {
	rand.Shuffle(len(b.tickets), func(i, j int) {
		b.tickets[i], b.tickets[j] = b.tickets[j], b.tickets[i]
	})
	return b.Save(ctx, false)
}

// RemoveTicketsOf removes every ticket owned by userID, keeping the rest in
// their relative order, and persists the box in place.
func (b *LotteryBox) RemoveTicketsOf(ctx context.Context, userID string) ([]models.Ticket, error) {
	var removed, kept []models.Ticket
	for _, ticket := range b.tickets {
		if ticket.OwnerUserID == userID {
			removed = append(removed, ticket)
		} else {
			kept = append(kept, ticket)
		}
	}
	b.tickets = kept
	if err := b.Save(ctx, false); err != nil {
		return nil, err
	}
	return removed, nil
}

// Checksum returns the hex-encoded sha-256 digest of the serialized box. It
// is announced before a draw so participants can verify the box afterwards.
func (b *LotteryBox) Checksum() string {
	digest := sha256.Sum256([]byte(EncodeLotteryBox(b)))
	return hex.EncodeToString(digest[:])
}

// Save persists the box under its store key, either as a new version or as an
// in-place update of the latest one.
func (b *LotteryBox) Save(ctx context.Context, addNewVersion bool) error {
	return b.store.StoreItem(ctx, lotteryBoxKey, EncodeLotteryBox(b), addNewVersion)
}

// EncodeLotteryBox renders the box as numbered ticket lines followed by a
// trailing next_ticket_number line. The line numbers are 1-based display
// indexes, independent of the ticket numbers.
func EncodeLotteryBox(b *LotteryBox) string {
	lines := make([]string, 0, len(b.tickets)+1)
	ticketLines := make([]string, 0, len(b.tickets))
	for i, ticket := range b.tickets {
		ticketLines = append(ticketLines, fmt.Sprintf("%4d %s", i+1, models.EncodeTicket(ticket)))
	}
	lines = append(lines, strings.Join(ticketLines, "\n"))
	lines = append(lines, fmt.Sprintf("next_ticket_number=%d", b.nextTicketNumber))
	return strings.Join(lines, "\n")
}

// DecodeLotteryBox parses the output of EncodeLotteryBox. The returned box is
// detached; GetLotteryBox attaches the store and clock.
func DecodeLotteryBox(s string) (*LotteryBox, error) {
	lines := strings.Split(s, "\n")
	lastLine := lines[len(lines)-1]
	if !strings.HasPrefix(lastLine, "next_ticket_number=") {
		return nil, fmt.Errorf("lottery box is malformed: next_ticket_number is missing")
	}
	nextTicketNumber, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(lastLine, "next_ticket_number=")))
	if err != nil {
		return nil, fmt.Errorf("lottery box is malformed: invalid next_ticket_number: %w", err)
	}

	var tickets []models.Ticket
	if len(lines) >= 2 && lines[0] != "" {
		for _, line := range lines[:len(lines)-1] {
			trimmed := strings.TrimSpace(line)
			_, ticketPart, found := strings.Cut(trimmed, " ")
			if !found {
				return nil, fmt.Errorf("lottery box is malformed: bad ticket line %q", line)
			}
			ticket, err := models.DecodeTicket(ticketPart)
			if err != nil {
				return nil, fmt.Errorf("lottery box is malformed: %w", err)
			}
			if ticket.Number >= nextTicketNumber {
				return nil, fmt.Errorf(
					"lottery box is malformed: ticket number %d not below next_ticket_number %d",
					ticket.Number, nextTicketNumber)
			}
			tickets = append(tickets, ticket)
		}
	}

	return &LotteryBox{tickets: tickets, nextTicketNumber: nextTicketNumber}, nil
}

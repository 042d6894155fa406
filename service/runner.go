package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"pepubot/models"
	"pepubot/storage"
)

const (
	entryAcceptedEmoji = "heavy_check_mark"
	entrySkippedEmoji  = "white_check_mark"
)

// Store keys for the persisted runner state.
const (
	runnerPhaseKey        = "runner_state"
	runnerStartMessageKey = "runner_start_message"
	runnerParticipantsKey = "runner_round_participants"
)

// Phase is the current stage of the lottery round.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseCollecting    Phase = "collecting"
	PhasePickingWinner Phase = "picking_winner"
)

var (
	startPattern = regexp.MustCompile(`(?i)^((pepu (is )?(open|start|begin|on\b))|((open|start|begin)(ing)? pepu))`)
	endPattern   = regexp.MustCompile(`(?i)^((pepu ((is|has) )?(now )?(over\b|end|off))|((end|stop|kill) pepu))`)
	dumpPattern  = regexp.MustCompile(`(?i)^dump ((prev(ious)?)|current)? *(lottery )?box`)
)

// roundState is the persisted state of the runner. A non-idle phase always
// carries the message that started the round.
type roundState struct {
	phase        Phase
	start        *models.MessageRef
	participants []string
}

// Runner drives the lottery round state machine. It consumes normalized chat
// messages, mutates the lottery box through the versioned store and emits
// replies through the chat client. State is reloaded from the store before
// every message so a restart between messages loses nothing.
type Runner struct {
	store    *storage.Store
	chat     ChatClient
	resolver UserResolver
	clock    func() time.Time

	// Pauses that pace the winner announcement.
	preDrumrollDelay time.Duration
	drumrollDelay    time.Duration

	mu    sync.Mutex
	state roundState
}

// NewRunner creates a runner persisting through store and speaking through
// chat. Ticket timestamps are taken in loc; nil means UTC.
func NewRunner(store *storage.Store, chat ChatClient, resolver UserResolver, loc *time.Location) *Runner {
	if loc == nil {
		loc = time.UTC
	}
	return &Runner{
		store:            store,
		chat:             chat,
		resolver:         resolver,
		clock:            func() time.Time { return time.Now().In(loc) },
		preDrumrollDelay: 3 * time.Second,
		drumrollDelay:    7 * time.Second,
	}
}

// FeedMessage normalizes and handles one inbound chat event. Events that are
// not regular user messages are dropped without error.
func (r *Runner) FeedMessage(ctx context.Context, event *models.MessageEvent) error {
	message := models.NormalizeMessage(event)
	if message == nil {
		return nil
	}

	if err := r.load(ctx); err != nil {
		return err
	}

	return r.handleMessage(ctx, message)
}

func (r *Runner) handleMessage(ctx context.Context, m *models.Message) error {
	if isDumpCommand(m) {
		return r.dumpLotteryBox(ctx, m)
	}

	if r.state.phase == PhaseIdle {
		if isStartMessage(m) {
			return r.startRound(ctx, m)
		}
		return nil
	}

	return r.handleMessageDuringRound(ctx, m)
}

func (r *Runner) handleMessageDuringRound(ctx context.Context, m *models.Message) error {
	if r.state.start == nil {
		return fmt.Errorf("runner state is corrupt: phase %q has no start message", r.state.phase)
	}

	if m.Channel != r.state.start.Channel {
		return r.handleForeignChannelMessage(ctx, m)
	}

	switch r.state.phase {
	case PhaseCollecting:
		switch {
		case len(m.MediaURLs) > 0:
			return r.handleMediaMessage(ctx, m)
		case len(m.URLsInText) > 0:
			r.handleBareURLMessage(m)
		case r.isEndMessage(m):
			return r.endRound(ctx)
		}
	case PhasePickingWinner:
		cleaned := strings.Trim(strings.TrimSpace(m.Text), ".")
		if number, ok := parseDrawNumber(cleaned); ok {
			return r.drawWinner(ctx, number)
		}
	}
	return nil
}

// isStartMessage reports whether the text is a round-opening command.
func isStartMessage(m *models.Message) bool {
	return startPattern.MatchString(strings.TrimSpace(m.Text))
}

// isEndMessage reports whether the text is a round-closing command from the
// user who started the round. Anyone else's end phrases never match.
func (r *Runner) isEndMessage(m *models.Message) bool {
	if r.state.start == nil {
		return false
	}
	if m.Author != r.state.start.Author {
		return false
	}
	return endPattern.MatchString(strings.TrimSpace(m.Text))
}

func isDumpCommand(m *models.Message) bool {
	return dumpPattern.MatchString(m.Text)
}

func parseDrawNumber(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	number, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return number, true
}

func (r *Runner) startRound(ctx context.Context, m *models.Message) error {
	r.mu.Lock()
	ref := m.Ref()
	r.state = roundState{phase: PhaseCollecting, start: &ref}
	err := r.save(ctx)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{"channel": ref.Channel, "starter": ref.Author}).Info("Round started")
	return r.say(ctx, "PePu is on!")
}

// say posts text to the channel the current round runs in.
func (r *Runner) say(ctx context.Context, text string) error {
	if r.state.start == nil {
		return fmt.Errorf("runner state is corrupt: no round channel to post to")
	}
	return r.chat.PostMessage(ctx, r.state.start.Channel, text)
}

func (r *Runner) handleForeignChannelMessage(ctx context.Context, m *models.Message) error {
	if isStartMessage(m) || r.isEndMessage(m) {
		return r.chat.PostMessage(ctx, m.Channel, "Sorry! Currently running PePu on another channel.")
	}
	return nil
}

func (r *Runner) handleMediaMessage(ctx context.Context, m *models.Message) error {
	added := false
	if !r.isParticipant(m.Author) {
		var err error
		added, err = r.addParticipant(ctx, m)
		if err != nil {
			return err
		}
	}

	name := entrySkippedEmoji
	if added {
		name = entryAcceptedEmoji
	}
	if err := r.chat.AddReaction(ctx, name, m.Channel, m.Ts); err != nil {
		if errors.Is(err, ErrAlreadyReacted) {
			return nil
		}
		return fmt.Errorf("failed to mark entry from %s: %w", m.Author, err)
	}
	return nil
}

func (r *Runner) isParticipant(author string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, participant := range r.state.participants {
		if participant == author {
			return true
		}
	}
	return false
}

// addParticipant mints a ticket for the message's author unless they already
// entered this round. Returns whether a ticket was added.
func (r *Runner) addParticipant(ctx context.Context, m *models.Message) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, participant := range r.state.participants {
		if participant == m.Author {
			return false, nil
		}
	}

	displayName, err := r.resolver.ResolveDisplayName(ctx, m.Author)
	if err != nil {
		return false, fmt.Errorf("failed to resolve display name of %s: %w", m.Author, err)
	}

	box, err := GetLotteryBox(ctx, r.store, r.clock)
	if err != nil {
		return false, err
	}
	if len(r.state.participants) == 0 {
		// First entrant of the round: open a new version of the box so the
		// previous round's contents stay dumpable.
		if err := box.Save(ctx, true); err != nil {
			return false, err
		}
	}
	ticket, err := box.AddTicket(ctx, m.Ref(), displayName)
	if err != nil {
		return false, err
	}

	r.state.participants = append(r.state.participants, m.Author)
	if err := r.save(ctx); err != nil {
		return false, err
	}

	log.WithFields(log.Fields{"ticket": ticket.ID(), "owner": displayName}).Info("Ticket added")
	return true, nil
}

// handleBareURLMessage is a deliberate no-op: messages carrying only bare
// links do not mint tickets and currently get no feedback either.
// TODO: tell the author that bare links are not counted as entries.
func (r *Runner) handleBareURLMessage(m *models.Message) {
	log.WithFields(log.Fields{"channel": m.Channel, "ts": m.Ts}).Debug("Ignoring message with bare URLs")
}

func (r *Runner) endRound(ctx context.Context) error {
	// Hold the lock through the whole close so a concurrent entry cannot
	// slip into a round that is being ended.
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.phase != PhaseCollecting {
		return nil
	}

	box, err := GetLotteryBox(ctx, r.store, r.clock)
	if err != nil {
		return err
	}

	if box.Len() == 0 {
		if err := r.say(ctx, "No tickets, no winners."); err != nil {
			return err
		}
		r.state = roundState{phase: PhaseIdle}
		log.Info("Round ended without tickets")
		return r.save(ctx)
	}

	if err := box.Shuffle(ctx); err != nil {
		return err
	}
	checksum := box.Checksum()
	tickets := box.Tickets()
	owners := make(map[string]struct{})
	for _, ticket := range tickets {
		owners[ticket.OwnerUserID] = struct{}{}
	}

	if err := r.say(ctx, "Ending PePu round."); err != nil {
		return err
	}
	summary := fmt.Sprintf(
		"Added %d new tickets to the lottery box. "+
			"There are currently %d tickets from %d participants. "+
			"Box checksum is %s",
		len(r.state.participants), len(tickets), len(owners), checksum)
	if err := r.say(ctx, summary); err != nil {
		return err
	}
	prompt := fmt.Sprintf("Choose a number from *1 to %d* to pick the winning ticket.", len(tickets))
	if err := r.say(ctx, prompt); err != nil {
		return err
	}

	r.state.phase = PhasePickingWinner
	log.WithFields(log.Fields{"tickets": len(tickets), "participants": len(owners)}).Info("Round closed, picking winner")
	return r.save(ctx)
}

func (r *Runner) drawWinner(ctx context.Context, number int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.phase != PhasePickingWinner {
		return nil
	}

	box, err := GetLotteryBox(ctx, r.store, r.clock)
	if err != nil {
		return err
	}
	tickets := box.Tickets()

	if number < 1 || number > len(tickets) {
		return r.say(ctx, "That isn't in the specified range. Try again.")
	}

	ticket := tickets[number-1]
	winner := ticket.OwnerUserID
	winnerTicketCount := 0
	for _, t := range tickets {
		if t.OwnerUserID == winner {
			winnerTicketCount++
		}
	}

	announcement := fmt.Sprintf(
		"Winning ticket is %s from %s. The winner had %d tickets in the box...",
		ticket.ID(), ticket.CreatedAt.Format(time.RFC3339), winnerTicketCount)
	if err := r.say(ctx, announcement); err != nil {
		return err
	}
	if err := r.pause(ctx, r.preDrumrollDelay); err != nil {
		return err
	}
	if err := r.say(ctx, ":drumroll: :drumroll: :drumroll:"); err != nil {
		return err
	}
	if err := r.pause(ctx, r.drumrollDelay); err != nil {
		return err
	}
	if err := r.say(ctx, fmt.Sprintf("The winner is <@%s>! :tada:", winner)); err != nil {
		return err
	}

	permalink, err := r.chat.GetPermalink(ctx, ticket.SourceChannel, ticket.SourceTs)
	if err != nil {
		return fmt.Errorf("failed to resolve link to winning ticket %s: %w", ticket.ID(), err)
	}
	if err := r.say(ctx, fmt.Sprintf("The winning ticket was created from this message: <%s>", permalink)); err != nil {
		return err
	}

	// Snapshot the box as drawn, then drop the winner's tickets from the
	// live version.
	if err := box.Save(ctx, true); err != nil {
		return err
	}
	if _, err := box.RemoveTicketsOf(ctx, winner); err != nil {
		return err
	}

	r.state = roundState{phase: PhaseIdle}
	log.WithFields(log.Fields{"ticket": ticket.ID(), "winner": winner}).Info("Winner drawn")
	return r.save(ctx)
}

func (r *Runner) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) dumpLotteryBox(ctx context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var text string
	if r.state.phase == PhasePickingWinner {
		text = "Cannot dump the lottery box while picking winner"
	} else {
		lowered := strings.ToLower(m.Text)
		wantCurrent := strings.Contains(lowered, "current") || strings.Contains(lowered, "now") ||
			(r.state.phase == PhaseCollecting && !strings.Contains(lowered, "prev"))

		fromBack := 2
		when := "in the last lottery"
		if wantCurrent {
			fromBack = 1
			when = "right now"
		}

		versions, err := r.store.GetAllVersions(ctx, lotteryBoxKey)
		if err != nil {
			return err
		}
		if len(versions) < fromBack {
			text = "There is no lottery box yet"
		} else {
			version := versions[len(versions)-fromBack]
			text = fmt.Sprintf("The lottery box contents %s:\n```%s```", when, strings.Join(version.Value, "\n"))
		}
	}

	return r.chat.PostMessage(ctx, m.Channel, text)
}

// load replaces the in-memory state with the persisted one. It runs before
// every message: the process may have restarted since the previous one.
func (r *Runner) load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	phaseValue, _, err := r.store.GetItem(ctx, runnerPhaseKey)
	if err != nil {
		return err
	}
	startValue, _, err := r.store.GetItem(ctx, runnerStartMessageKey)
	if err != nil {
		return err
	}
	participantsValue, _, err := r.store.GetItem(ctx, runnerParticipantsKey)
	if err != nil {
		return err
	}

	state, err := decodeRunnerState(phaseValue, startValue, participantsValue)
	if err != nil {
		return err
	}
	r.state = state
	return nil
}

// save persists the runner state. Callers must hold r.mu.
func (r *Runner) save(ctx context.Context) error {
	if err := r.store.StoreItem(ctx, runnerPhaseKey, string(r.state.phase), false); err != nil {
		return err
	}
	start := ""
	if r.state.start != nil {
		start = models.EncodeMessageRef(*r.state.start)
	}
	if err := r.store.StoreItem(ctx, runnerStartMessageKey, start, false); err != nil {
		return err
	}
	return r.store.StoreItem(ctx, runnerParticipantsKey, strings.Join(r.state.participants, "\n"), false)
}

func decodeRunnerState(phaseValue, startValue, participantsValue string) (roundState, error) {
	phase := Phase(phaseValue)
	if phaseValue == "" {
		phase = PhaseIdle
	}
	switch phase {
	case PhaseIdle, PhaseCollecting, PhasePickingWinner:
	default:
		return roundState{}, fmt.Errorf("runner state is corrupt: unknown phase %q", phaseValue)
	}

	var start *models.MessageRef
	if startValue != "" {
		ref, err := models.DecodeMessageRef(startValue)
		if err != nil {
			return roundState{}, fmt.Errorf("runner state is corrupt: %w", err)
		}
		start = &ref
	}
	if phase != PhaseIdle && start == nil {
		return roundState{}, fmt.Errorf("runner state is corrupt: phase %q without a start message", phase)
	}

	var participants []string
	if participantsValue != "" {
		participants = strings.Split(participantsValue, "\n")
	}

	return roundState{phase: phase, start: start, participants: participants}, nil
}

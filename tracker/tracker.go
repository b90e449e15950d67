// Package tracker keeps the snapshot of the selected character current by polling the
// Bungie API on a fixed interval.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kpango/glg"
	"golang.org/x/sync/singleflight"

	"github.com/rking788/objective-tracker/models"
	"github.com/rking788/objective-tracker/status"
)

// DefaultInterval is how often the selected character is refreshed.
const DefaultInterval = 30 * time.Second

// State is the lifecycle state of a Tracker.
type State int

// Tracker states
const (
	Idle State = iota
	SelectingCharacter
	Active
	TornDown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case SelectingCharacter:
		return "SelectingCharacter"
	case Active:
		return "Active"
	case TornDown:
		return "TornDown"
	}

	return fmt.Sprintf("State(%d)", int(s))
}

// Status texts sent to the sink.
const (
	RetrievingCharacters = "Retrieving Characters..."
	UpdatingInventory    = "Updating Inventory..."
	UpdateDone           = "Done!"
	UpdateFailed         = "Failed to retrieve inventory!"
)

// ErrStale is returned by a fetch whose character was switched away from before it finished.
var ErrStale = errors.New("tracker: character changed before the fetch completed")

// ErrStopped is returned by a refresh requested after the tracker was torn down.
var ErrStopped = errors.New("tracker: stopped")

// Fetcher loads characters from the remote service.
type Fetcher interface {
	GetCharacters(ctx context.Context, membership *models.Membership) (models.CharacterList, error)
	GetCharacter(ctx context.Context, membership *models.Membership, characterID string) (*models.Character, error)
}

// Authenticator makes sure requests go out with a valid access token.
type Authenticator interface {
	EnsureValidAccess(ctx context.Context) error
}

// Tracker owns the snapshot of one character at a time. Snapshots are replaced wholesale and
// never modified after they are published, readers may keep them.
type Tracker struct {
	fetcher Fetcher
	auth    Authenticator
	sink    status.Sink

	// Interval between refreshes, DefaultInterval when zero.
	Interval time.Duration

	flights singleflight.Group

	mu          sync.Mutex
	state       State
	membership  *models.Membership
	characters  models.CharacterList
	selected    string
	snapshot    *models.Character
	epoch       uint64
	loopCtx     context.Context
	stopLoop    context.CancelFunc
	fetchCtx    context.Context
	cancelFetch context.CancelFunc
	subscribers []chan *models.Character
	done        chan struct{}
	err         error
}

// New creates an idle Tracker.
func New(fetcher Fetcher, auth Authenticator, sink status.Sink) *Tracker {
	if sink == nil {
		sink = status.Discard
	}

	return &Tracker{
		fetcher: fetcher,
		auth:    auth,
		sink:    sink,
		done:    make(chan struct{}),
	}
}

// Start loads the characters of membership, selects the most recently played one and
// starts polling it. The polling stops when ctx is done or Stop is called. A fatal error
// tears the tracker down, any other error leaves it idle so Start may be retried.
func (t *Tracker) Start(ctx context.Context, membership *models.Membership) error {
	t.mu.Lock()
	if t.state != Idle {
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("tracker: cannot start while %s", state)
	}
	t.state = SelectingCharacter
	t.membership = membership
	t.mu.Unlock()

	t.sink.Status(RetrievingCharacters)
	chars, err := t.loadCharacters(ctx, membership)
	if err != nil {
		if status.IsFatal(err) {
			t.teardown(err)
		} else {
			t.setState(Idle)
		}
		return err
	}

	selected := chars.MostRecentlyPlayed()
	glg.Infof("Selected %s, last played %v", selected.Title(), selected.DateLastPlayed)

	t.mu.Lock()
	if t.state == TornDown {
		t.mu.Unlock()
		return context.Canceled
	}
	t.characters = chars
	t.loopCtx, t.stopLoop = context.WithCancel(ctx)
	t.selectLocked(selected.CharacterID)
	t.state = Active
	loopCtx := t.loopCtx
	t.mu.Unlock()

	go t.run(loopCtx)

	return nil
}

func (t *Tracker) loadCharacters(ctx context.Context, membership *models.Membership) (models.CharacterList, error) {
	if err := t.auth.EnsureValidAccess(ctx); err != nil {
		return nil, err
	}

	chars, err := t.fetcher.GetCharacters(ctx, membership)
	if err != nil {
		glg.Errorf("Failed to load characters for %s: %s", membership, err.Error())
		return nil, status.Errorf(status.KindFetchFailed, err)
	}
	if len(chars) == 0 {
		return nil, status.Errorf(status.KindNoCharacters, fmt.Errorf("no characters found for %s", membership))
	}

	return chars, nil
}

// run owns the single timer of the session. Each tick refreshes whichever character is
// selected at that moment.
func (t *Tracker) run(ctx context.Context) {
	interval := t.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	t.cycle(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.teardown(nil)
			return
		case <-ticker.C:
			t.cycle(ctx)
		}
	}
}

// cycle is one fetch-and-replace of the selected character. Failures are reported to the
// sink, fatal ones also tear the tracker down.
func (t *Tracker) cycle(ctx context.Context) error {
	if t.State() == TornDown {
		return ErrStopped
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := t.refresh(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStopped):
		glg.Debug("Skipped a refresh after teardown")
	case errors.Is(err, ErrStale):
		glg.Debugf("Discarded a stale fetch: %s", err.Error())
	case status.KindOf(err) == status.KindCanceled:
		glg.Debugf("Fetch canceled: %s", err.Error())
	case status.IsFatal(err):
		status.Report(t.sink, err)
		t.teardown(err)
	default:
		t.sink.Status(UpdateFailed)
		status.Report(t.sink, err)
	}

	return err
}

func (t *Tracker) refresh(ctx context.Context) error {
	if err := t.auth.EnsureValidAccess(ctx); err != nil {
		return err
	}

	t.mu.Lock()
	if t.state != Active {
		state := t.state
		t.mu.Unlock()
		if state == TornDown {
			return ErrStopped
		}
		return fmt.Errorf("tracker: cannot refresh while %s", state)
	}
	id, epoch, fetchCtx, membership := t.selected, t.epoch, t.fetchCtx, t.membership
	t.mu.Unlock()

	t.sink.Status(UpdatingInventory)

	// Concurrent refreshes of the same character share one request. The request runs on the
	// selection's context so switching characters cancels it.
	ch := t.flights.DoChan(id, func() (interface{}, error) {
		return t.fetcher.GetCharacter(fetchCtx, membership, id)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res = <-ch:
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Last writer wins only while it still matches the selection
	if t.epoch != epoch || t.selected != id || t.state != Active {
		return fmt.Errorf("%w (%s)", ErrStale, id)
	}

	if res.Err != nil {
		glg.Errorf("Failed to load character %s: %s", id, res.Err.Error())
		return status.Errorf(status.KindFetchFailed, res.Err)
	}

	char := res.Val.(*models.Character)
	t.snapshot = char
	t.sink.Status(UpdateDone)
	t.publishLocked(char)

	return nil
}

// selectLocked points the tracker at id. Any fetch still running for the previous
// selection is canceled and forgotten. t.mu must be held.
func (t *Tracker) selectLocked(id string) {
	if t.cancelFetch != nil {
		t.cancelFetch()
		t.flights.Forget(t.selected)
	}

	t.selected = id
	t.snapshot = nil
	t.epoch++
	t.fetchCtx, t.cancelFetch = context.WithCancel(t.loopCtx)
}

// SelectCharacter switches the tracked character and fetches it right away. The returned
// error is the result of that first fetch. The timer keeps its schedule and targets the new
// character from its next tick.
func (t *Tracker) SelectCharacter(ctx context.Context, characterID string) error {
	t.mu.Lock()
	if t.state != Active {
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("tracker: cannot select a character while %s", state)
	}
	if t.characters.FindCharacterFromID(characterID) == nil {
		t.mu.Unlock()
		return fmt.Errorf("tracker: unknown character %s", characterID)
	}
	if characterID != t.selected {
		glg.Infof("Switching from character %s to %s", t.selected, characterID)
		t.selectLocked(characterID)
	}
	t.mu.Unlock()

	return t.cycle(ctx)
}

// Refresh fetches the selected character now, outside of the timer schedule.
func (t *Tracker) Refresh(ctx context.Context) error {
	return t.cycle(ctx)
}

// Snapshot returns the latest snapshot of the selected character, nil before the first
// successful fetch.
func (t *Tracker) Snapshot() *models.Character {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.snapshot
}

// Characters returns the characters of the membership, most recently played first.
func (t *Tracker) Characters() models.CharacterList {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append(models.CharacterList(nil), t.characters...)
}

// Selected returns the id of the tracked character.
func (t *Tracker) Selected() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.selected
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

// Subscribe returns a channel receiving every new snapshot. A slow reader only ever misses
// intermediate snapshots, the latest one is always delivered. The channel is closed on
// teardown.
func (t *Tracker) Subscribe() <-chan *models.Character {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan *models.Character, 1)
	if t.state == TornDown {
		close(ch)
		return ch
	}
	if t.snapshot != nil {
		ch <- t.snapshot
	}
	t.subscribers = append(t.subscribers, ch)

	return ch
}

func (t *Tracker) publishLocked(char *models.Character) {
	for _, ch := range t.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- char
	}
}

// Stop tears the tracker down. No fetch is issued afterwards.
func (t *Tracker) Stop() {
	t.teardown(nil)
}

// Done is closed once the tracker is torn down.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

// Err returns the error that tore the tracker down, nil after Stop.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.err
}

func (t *Tracker) setState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TornDown {
		t.state = s
	}
}

func (t *Tracker) teardown(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == TornDown {
		return
	}

	t.state = TornDown
	t.err = err
	if t.cancelFetch != nil {
		t.cancelFetch()
	}
	if t.stopLoop != nil {
		t.stopLoop()
	}
	for _, ch := range t.subscribers {
		close(ch)
	}
	t.subscribers = nil
	close(t.done)

	if err != nil {
		glg.Warnf("Tracker stopped: %s", err.Error())
	} else {
		glg.Info("Tracker stopped")
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	raven "github.com/getsentry/raven-go"
	"github.com/kpango/glg"

	"github.com/rking788/objective-tracker/auth"
	"github.com/rking788/objective-tracker/bungie"
	"github.com/rking788/objective-tracker/consent"
	"github.com/rking788/objective-tracker/manifest"
	"github.com/rking788/objective-tracker/membership"
	"github.com/rking788/objective-tracker/models"
	"github.com/rking788/objective-tracker/session"
	"github.com/rking788/objective-tracker/status"
	"github.com/rking788/objective-tracker/storage"
	"github.com/rking788/objective-tracker/tracker"
)

// Set at build time
var (
	Version   = "dev"
	BuildDate = "unknown"
)

var configPath = flag.String("config", "", "path to the environment configuration file")
var characterID = flag.String("character", "", "character id to track instead of the most recently played one")
var pursuitFilter = flag.String("filter", "", "only show pursuits of this type, e.g. Bounty")

func main() {

	flag.Parse()

	config, err := loadConfig(configPath)
	if err != nil {
		glg.Fatalf("Invalid configuration: %s", err.Error())
	}

	ConfigureLogging(config.LogLevel, config.LogFilePath)
	defer CloseLogger()
	raven.SetDSN(config.SentryDSN)

	glg.Printf("Version=%s, BuildDate=%v", Version, BuildDate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config); err != nil {
		raven.CaptureErrorAndWait(err, nil)
		glg.Errorf("Tracker stopped: %s", err.Error())
		CloseLogger()
		os.Exit(1)
	}
}

// app holds everything that outlives a single session.
type app struct {
	config   *EnvConfig
	store    storage.Store
	auth     *auth.Manager
	client   *bungie.Client
	db       *manifest.Database
	syncer   *manifest.Synchronizer
	resolver *membership.Resolver
	consent  *consent.Loopback
	sink     status.Sink
}

func newApp(config *EnvConfig) (*app, error) {
	if err := os.MkdirAll(config.DataDir, 0755); err != nil {
		return nil, err
	}

	store, err := storage.Open(config.StoreDriver, config.StorePath())
	if err != nil {
		return nil, err
	}

	callbackURL := "http://" + config.CallbackAddr + consent.CallbackPath
	tokens := bungie.NewTokenClient(config.BungieBaseURL, config.BungieClientID, config.BungieClientSecret, callbackURL)
	manager := auth.NewManager(storage.NewCredentialStore(store), tokens)

	client := bungie.NewClient(config.BungieBaseURL, config.BungieAPIKey, manager, config.RequestsPerSecond)

	db, err := manifest.OpenDatabase(filepath.Join(config.DataDir, manifest.DatasetFile))
	if err != nil {
		store.Close()
		return nil, err
	}
	client.Definitions = db

	prefs := storage.NewPreferences(store)
	syncer := manifest.NewSynchronizer(client, prefs, config.DataDir)
	syncer.Language = config.Language
	syncer.OnInstalled = db.Reload

	return &app{
		config:   config,
		store:    store,
		auth:     manager,
		client:   client,
		db:       db,
		syncer:   syncer,
		resolver: membership.NewResolver(client, prefs, &membership.ConsoleChooser{In: os.Stdin, Out: os.Stdout}),
		consent:  &consent.Loopback{Addr: config.CallbackAddr, URLs: tokens, Open: consent.PrintOpener},
		sink:     status.NewLogSink(),
	}, nil
}

func (a *app) Close() {
	a.db.Close()
	a.store.Close()
}

// run starts sessions until ctx is done.
func run(ctx context.Context, config *EnvConfig) error {
	a, err := newApp(config)
	if err != nil {
		return err
	}
	defer a.Close()

	return superviseSessions(ctx, config.RetryDelay, func(ctx context.Context) error {
		tr := tracker.New(a.client, a.auth, a.sink)
		tr.Interval = config.RefreshInterval
		// Closes the display subscription even when the session never started the tracker
		defer tr.Stop()

		sess := session.New(a.auth, a.consent, a.resolver, a.syncer, tr, a.sink)
		a.auth.OnAuthorized = sess.FirstAuthorization

		go display(ctx, tr, os.Stdout, *characterID, *pursuitFilter)

		return sess.Run(ctx)
	})
}

// superviseSessions calls runSession until ctx is done. An expired session starts over with
// a new login right away, a recoverable failure is retried after retryDelay. Only the other
// fatal kinds end the program.
func superviseSessions(ctx context.Context, retryDelay time.Duration, runSession func(context.Context) error) error {
	for {
		err := runSession(ctx)
		if ctx.Err() != nil {
			return nil
		}

		switch {
		case errors.Is(err, status.ErrSessionExpired):
			glg.Warn("Session expired, log in again to continue")
			continue
		case status.IsFatal(err):
			return err
		case err != nil:
			glg.Warnf("Session failed, retrying in %v: %s", retryDelay, err.Error())
		default:
			glg.Infof("Session ended, starting a new one in %v", retryDelay)
		}

		timer := time.NewTimer(retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// display prints every snapshot of the tracked character. When a character id is given it
// switches to that character after the first snapshot.
func display(ctx context.Context, tr *tracker.Tracker, w io.Writer, characterID, filter string) {
	snapshots := tr.Subscribe()
	switched := characterID == ""

	for char := range snapshots {
		if !switched && tr.Selected() != characterID {
			switched = true
			if err := tr.SelectCharacter(ctx, characterID); err != nil {
				glg.Errorf("Failed to switch to character %s: %s", characterID, err.Error())
			}
			continue
		}
		switched = true

		printSnapshot(w, char, filter)
	}
}

func printSnapshot(w io.Writer, char *models.Character, filter string) {
	fmt.Fprintf(w, "\n%s\n", char.Title())

	pursuits := char.Inventory.Eligible(filter)
	if filter == "" {
		fmt.Fprintf(w, "Pursuits (%d):\n", len(pursuits))
	} else {
		fmt.Fprintf(w, "Pursuits, %s only (%d):\n", filter, len(pursuits))
	}
	for _, item := range pursuits {
		fmt.Fprintf(w, "  - %s [%s]\n", item.Name(), item.TypeName())
	}

	printMilestones(w, "Daily", char.Milestones.Daily())
	printMilestones(w, "Weekly", char.Milestones.Weekly())

	if types := char.Inventory.PursuitTypes(); len(types) > 0 {
		fmt.Fprintf(w, "Filters: %v\n", types)
	}
}

func printMilestones(w io.Writer, title string, milestones models.MilestoneList) {
	fmt.Fprintf(w, "%s milestones (%d):\n", title, len(milestones))
	for _, m := range milestones {
		name := m.Name()
		if name == "" {
			name = fmt.Sprintf("Milestone %d", m.MilestoneHash)
		}
		fmt.Fprintf(w, "  - %s\n", name)
	}
}

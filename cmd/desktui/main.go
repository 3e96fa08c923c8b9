package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dlemos/chatdesk/internal/bus"
	"github.com/dlemos/chatdesk/internal/config"
	"github.com/dlemos/chatdesk/internal/lock"
	"github.com/dlemos/chatdesk/internal/logging"
	"github.com/dlemos/chatdesk/internal/outbox"
	"github.com/dlemos/chatdesk/internal/profile"
	"github.com/dlemos/chatdesk/internal/push"
	"github.com/dlemos/chatdesk/internal/rest"
	"github.com/dlemos/chatdesk/internal/status"
	"github.com/dlemos/chatdesk/internal/store"
	intsync "github.com/dlemos/chatdesk/internal/sync"
	"github.com/dlemos/chatdesk/internal/tui"
	"github.com/dlemos/chatdesk/internal/tui/model"
)

// desktui runs the full stack in-process: the reconciliation engine,
// push listener, and outbox share the profile's cache with the console.
func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	if err := run(*profileFlag); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(profileFlag string) error {
	profileName := profile.Resolve(profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		return err
	}
	if err := profile.EnsureDir(profileName); err != nil {
		return err
	}

	cfg := config.LoadOrDefault(profile.ConfigPath())

	identity, err := profile.LoadIdentity(profile.IdentityPath(profileName))
	if err != nil {
		return fmt.Errorf("load identity (create %s first): %w",
			profile.IdentityPath(profileName), err)
	}

	logger, err := logging.New(profile.LogPath(profileName), profileName)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	lk, err := lock.Acquire(profile.Dir(profileName))
	if err != nil {
		return err
	}
	defer func() { _ = lk.Release() }()

	db, err := store.Open(profile.CacheDBPath(profileName))
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		return err
	}

	b := bus.New()
	machine := status.NewMachine(b)
	client := rest.New(cfg.APIBaseURL, cfg.Token)
	engine := intsync.NewEngine(db, client, b, logger, cfg.PageSize, time.Minute)
	sender := outbox.NewSender(db, client, b, *identity, logger)
	listener := push.NewListener(cfg.SocketURL, cfg.Token, b, machine, logger)

	ctx := context.Background()
	engine.Start(ctx)
	defer engine.Stop()
	sender.Start(ctx)
	defer sender.Stop()
	listener.Start(ctx)
	defer listener.Stop()

	vm := model.NewViewModel(db, sender, b, *identity, machine, logger)
	app := tui.NewApp(vm, profileName)
	return app.Run()
}

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dlemos/chatdesk/internal/config"
	"github.com/dlemos/chatdesk/internal/daemon"
	"github.com/dlemos/chatdesk/internal/profile"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg := config.LoadOrDefault(profile.ConfigPath())

	identity, err := profile.LoadIdentity(profile.IdentityPath(profileName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		fmt.Fprintf(os.Stderr, "create %s with your agent id, name, and email\n",
			profile.IdentityPath(profileName))
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			ProfileName: profileName,
			Config:      cfg,
			Identity:    *identity,
		}),
	)

	app.Run()
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/handiism/soundcloud-offline/internal/app"
	"github.com/handiism/soundcloud-offline/internal/config"
	"github.com/handiism/soundcloud-offline/internal/tui"
)

func main() {
	configFlag := flag.String("config", "", "Path to config file (.json, .yaml)")
	logFlag := flag.String("log", "", "Write logs to this file")
	flag.Parse()

	settings := config.DefaultSettings()
	if *configFlag != "" {
		var err error
		if settings, err = config.Load(*configFlag); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	} else {
		settings.ApplyEnv()
	}

	// The alternate screen owns the terminal; logs go to a file or nowhere.
	var logOut io.Writer = io.Discard
	if *logFlag != "" {
		f, err := os.OpenFile(*logFlag, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}

	a, err := app.New(context.Background(), settings, app.Options{LogOutput: logOut})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := tui.Run(a); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

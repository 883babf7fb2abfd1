package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/handiism/soundcloud-offline/internal/app"
	"github.com/handiism/soundcloud-offline/internal/common"
	"github.com/handiism/soundcloud-offline/internal/config"
	"github.com/handiism/soundcloud-offline/internal/download"
	"github.com/handiism/soundcloud-offline/internal/logging"
	"github.com/handiism/soundcloud-offline/internal/metrics"
	"github.com/handiism/soundcloud-offline/internal/model"
)

const usage = `SoundCloud Offline - Keep SoundCloud tracks for offline listening

Usage:
  sc-dl [options] <command> [args]

Commands:
  login                 Authorize this client with your SoundCloud account
  logout                Forget the stored credential
  status                Show login state and the offline library
  likes                 List liked tracks
  search <query>        Search tracks
  playlists             List your playlists
  like <id>             Like a track
  unlike <id>           Remove a track from your likes
  download [id...]      Download the given track ids, or all likes
  remove <id>           Remove a downloaded track
  playlist <id>         Download a playlist and write a playlist file
  reconcile             Repair the offline library

For interactive mode, use: sc-tui

Options:
`

type cli struct {
	app         *app.App
	max         int
	concurrency int
	verbose     bool
}

func main() {
	var (
		configFlag      = flag.String("config", "", "Path to config file (.json, .yaml)")
		outputFlag      = flag.String("output", "", "Downloads directory (overrides config)")
		maxFlag         = flag.Int("max", 0, "Maximum number of tracks to fetch (0 = all)")
		concurrencyFlag = flag.Int("concurrency", 3, "Parallel downloads")
		verboseFlag     = flag.Bool("verbose", false, "Show verbose output")
		metricsFlag     = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	)
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}
	command, args := flag.Arg(0), flag.Args()[1:]

	settings := config.DefaultSettings()
	if *configFlag != "" {
		var err error
		settings, err = config.Load(*configFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	} else {
		settings.ApplyEnv()
	}
	if *outputFlag != "" {
		settings.DownloadsPath = *outputFlag
	}

	stdin := bufio.NewReader(os.Stdin)
	if command == "login" && settings.ClientSecret == "" {
		secret, err := getSecret(stdin, "Client secret: ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading client secret: %v\n", err)
			os.Exit(1)
		}
		settings.ClientSecret = secret
	}

	// Handle interrupts
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, settings, app.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if *metricsFlag != "" {
		srv := &http.Server{Addr: *metricsFlag, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.Logger.Error("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
	}

	ctx = logging.WithContext(ctx, a.Logger.With("command", command))
	c := &cli{app: a, max: *maxFlag, concurrency: *concurrencyFlag, verbose: *verboseFlag}
	if err := c.run(ctx, stdin, command, args); err != nil {
		if ctx.Err() != nil {
			fmt.Println("\nCancelled.")
			os.Exit(130)
		}
		if errors.Is(err, common.ErrAuthRequired) {
			fmt.Fprintln(os.Stderr, "Not logged in. Run: sc-dl login")
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (c *cli) run(ctx context.Context, stdin *bufio.Reader, command string, args []string) error {
	switch command {
	case "login":
		return c.login(ctx, stdin)
	case "logout":
		return c.app.Auth.Logout(ctx)
	case "status":
		return c.status(ctx)
	case "likes":
		return c.likes(ctx)
	case "search":
		if len(args) == 0 {
			return errors.New("search needs a query")
		}
		return c.search(ctx, args[0])
	case "playlists":
		return c.playlists(ctx)
	case "like", "unlike":
		id, err := trackID(args)
		if err != nil {
			return err
		}
		if command == "like" {
			return c.app.SoundCloud.LikeTrack(ctx, id)
		}
		return c.app.SoundCloud.UnlikeTrack(ctx, id)
	case "download":
		return c.download(ctx, args)
	case "remove":
		id, err := trackID(args)
		if err != nil {
			return err
		}
		if err := c.reconcile(ctx); err != nil {
			return err
		}
		return c.app.Downloads.RemoveArtifact(ctx, id)
	case "playlist":
		id, err := trackID(args)
		if err != nil {
			return err
		}
		return c.playlist(ctx, id)
	case "reconcile":
		return c.reconcile(ctx)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func (c *cli) login(ctx context.Context, stdin *bufio.Reader) error {
	authURL, err := c.app.Auth.AuthorizationURL(uuid.NewString())
	if err != nil {
		return err
	}
	fmt.Println("Open this URL in a browser and authorize the app:")
	fmt.Println()
	fmt.Println("  " + authURL)
	fmt.Println()

	code, err := getSimpleText(stdin, "Authorization code: ")
	if err != nil {
		return err
	}
	if code == "" {
		return errors.New("no authorization code given")
	}
	if _, err := c.app.Auth.Login(ctx, code); err != nil {
		return err
	}

	me, err := c.app.SoundCloud.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Logged in as %s\n", me.DisplayName())
	return nil
}

func (c *cli) status(ctx context.Context) error {
	state, err := c.app.Auth.State(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Login:   %s\n", state)

	reconcileErr := c.reconcile(ctx)
	fmt.Printf("Offline: %d track(s) in %s\n", len(c.app.Downloads.Downloaded()), c.app.Settings.DownloadsPath)
	return reconcileErr
}

func (c *cli) likes(ctx context.Context) error {
	first, err := c.app.SoundCloud.Likes(ctx)
	if err != nil {
		return err
	}
	page, err := c.app.SoundCloud.CollectTracks(ctx, first, c.max)
	if err != nil {
		return err
	}
	if err := c.reconcile(ctx); err != nil {
		return err
	}
	c.printTracks(page.Items)
	return nil
}

func (c *cli) search(ctx context.Context, q string) error {
	first, err := c.app.SoundCloud.SearchTracks(ctx, q)
	if err != nil {
		return err
	}
	page, err := c.app.SoundCloud.CollectTracks(ctx, first, c.max)
	if err != nil {
		return err
	}
	c.printTracks(page.Items)
	return nil
}

func (c *cli) playlists(ctx context.Context) error {
	page, err := c.app.SoundCloud.Playlists(ctx)
	if err != nil {
		return err
	}
	for {
		for _, p := range page.Items {
			fmt.Printf("%12d  %s by %s (%d tracks)\n", p.ID, p.Title, p.Owner, p.TrackCount)
		}
		if !page.HasNextPage() {
			return nil
		}
		if page, err = c.app.SoundCloud.NextPlaylists(ctx, page); err != nil {
			return err
		}
	}
}

func (c *cli) download(ctx context.Context, args []string) error {
	if err := c.reconcile(ctx); err != nil {
		return err
	}

	var tracks []*model.Track
	if len(args) == 0 {
		first, err := c.app.SoundCloud.Likes(ctx)
		if err != nil {
			return err
		}
		page, err := c.app.SoundCloud.CollectTracks(ctx, first, c.max)
		if err != nil {
			return err
		}
		tracks = page.Items
	} else {
		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid track id %q", arg)
			}
			track, err := c.app.SoundCloud.Track(ctx, id)
			if err != nil {
				return err
			}
			tracks = append(tracks, track)
		}
	}

	return c.downloadTracks(ctx, tracks)
}

func (c *cli) playlist(ctx context.Context, id int64) error {
	if err := c.reconcile(ctx); err != nil {
		return err
	}

	playlist, err := c.app.SoundCloud.Playlist(ctx, id)
	if err != nil {
		return err
	}
	first, err := c.app.SoundCloud.PlaylistTracks(ctx, id)
	if err != nil {
		return err
	}
	page, err := c.app.SoundCloud.CollectTracks(ctx, first, c.max)
	if err != nil {
		return err
	}
	playlist.Tracks = page.Items

	fmt.Printf("♫ %s by %s (%d tracks)\n\n", playlist.Title, playlist.Owner, len(playlist.Tracks))
	if err := c.downloadTracks(ctx, playlist.Tracks); err != nil {
		return err
	}

	path, err := c.app.ExportPlaylist(ctx, playlist, c.app.Settings.DownloadsPath)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Playlist written to %s\n", path)
	return nil
}

func (c *cli) downloadTracks(ctx context.Context, tracks []*model.Track) error {
	events, unsubscribe := c.app.Downloads.Subscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range events {
			c.printEvent(ev)
		}
	}()

	fmt.Printf("↓ Downloading %d track(s)...\n\n", len(tracks))
	res, err := c.app.DownloadTracks(ctx, tracks, c.concurrency)
	unsubscribe()
	<-printed

	fmt.Println()
	fmt.Println("────────────────────────────────────────")
	fmt.Printf("✨ Done: %d downloaded, %d skipped, %d failed\n", res.Downloaded, res.Skipped, res.Failed)
	return err
}

func (c *cli) reconcile(ctx context.Context) error {
	err := c.app.Downloads.Reconcile(ctx)
	if errors.Is(err, common.ErrCorruptArtifact) {
		fmt.Fprintf(os.Stderr, "! Removed incomplete downloads:\n%v\n", err)
		return nil
	}
	return err
}

func (c *cli) printTracks(tracks []*model.Track) {
	for _, t := range tracks {
		mark := " "
		if c.app.Downloads.IsDownloaded(t.ID) {
			mark = "✓"
		}
		d := int(t.Duration)
		fmt.Printf("%s %12d  %s - %s (%d:%02d)\n", mark, t.ID, t.Artist, t.Title, d/60, d%60)
	}
}

func (c *cli) printEvent(ev download.Event) {
	if ev.Message == "" {
		return
	}
	if ev.Level == download.LevelVerbose && !c.verbose {
		return
	}

	prefix := ""
	switch ev.Level {
	case download.LevelError:
		prefix = "✗ "
	case download.LevelWarning:
		prefix = "! "
	case download.LevelSuccess:
		prefix = "✓ "
	case download.LevelInfo:
		prefix = "› "
	default:
		prefix = "  "
	}

	fmt.Println(prefix + ev.Message)
}

func trackID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, errors.New("expected exactly one id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", args[0])
	}
	return id, nil
}

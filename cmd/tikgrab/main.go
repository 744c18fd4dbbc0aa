// Command tikgrab resolves a post link and downloads its media from the
// terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/iconidentify/tikgrab/internal/app"
	"github.com/iconidentify/tikgrab/internal/config"
	"github.com/iconidentify/tikgrab/internal/domain"
	"github.com/iconidentify/tikgrab/internal/service"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	outDir := flag.String("out", ".", "Directory to save downloads in")
	kind := flag.String("kind", "video", "What to download: video, hd, audio, images or zip")
	verbose := flag.Bool("v", false, "Log debug output to stderr")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: tikgrab [-config file] [-out dir] [-kind video|audio|hd|images|zip] <url>")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("tikgrab %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg.Storage.BasePath = *outDir
	cfg.Storage.TempPath = filepath.Join(os.TempDir(), "tikgrab-staging")

	a, err := app.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fd := int(os.Stdout.Fd())
	tty := term.IsTerminal(fd)
	cols := 0
	if tty {
		cols, _, _ = term.GetSize(fd)
	}
	printer := newStatusPrinter(os.Stdout, tty, cols)

	subID, events := a.Events.Subscribe()
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		for e := range events {
			printer.Event(e)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err = run(ctx, a, printer, flag.Arg(0), *kind)

	stop()
	a.Events.Unsubscribe(subID)
	<-rendered
	a.Close()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			printer.Println("Cancelled")
			os.Exit(130)
		}
		printer.Println("Error: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App, p *statusPrinter, rawURL, kind string) error {
	rec, err := a.Media.Resolve(ctx, rawURL)
	if err != nil {
		return err
	}
	printRecord(p, rec)

	switch kind {
	case "zip":
		res, err := a.Downloads.ArchiveImages(ctx, service.ImagesRequest{})
		if err != nil {
			return err
		}
		saved, err := a.Saver.SaveBytesAsFile(ctx, res.Data, res.Filename)
		if err != nil {
			return err
		}
		p.Println("Archive: %s (%d/%d images, %s)", saved.Path, res.Succeeded, res.Total, humanize.Bytes(uint64(saved.Size)))
		for _, f := range res.Failures {
			p.Println("  image %d failed: %s", f.Position, f.Error)
		}
		return nil

	case "images":
		res, err := a.Downloads.DownloadImages(ctx, service.ImagesRequest{})
		if res != nil {
			p.Println("Images: %d saved, %d failed of %d", res.Succeeded, res.Failed, res.Total)
		}
		return err
	}

	variant, err := service.ParseVariant(kind)
	if err != nil {
		return err
	}
	res, err := a.Downloads.DownloadMedia(ctx, service.DownloadRequest{Variant: variant})
	if err != nil {
		return err
	}
	if res.Saved != nil {
		p.Println("Saved: %s (%s via %s)", res.Saved.Path, humanize.Bytes(uint64(res.Saved.Size)), res.Method)
	}
	return nil
}

func printRecord(p *statusPrinter, rec *domain.MediaRecord) {
	title := rec.Title
	if title == "" {
		title = string(rec.ID)
	}
	p.Println("%s", title)
	if rec.Author.Username != "" {
		p.Println("  by @%s", rec.Author.Username)
	}
	if rec.IsSlideshow() {
		p.Println("  %d images", len(rec.Images))
	} else if rec.Duration > 0 {
		p.Println("  %ds", rec.Duration)
	}
	s := rec.Statistics
	p.Println("  %s plays, %s likes, %s comments, %s shares",
		humanize.Comma(s.Plays), humanize.Comma(s.Likes), humanize.Comma(s.Comments), humanize.Comma(s.Shares))
}

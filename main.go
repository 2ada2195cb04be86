package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"SketchBoard/internal/board"
	"SketchBoard/internal/config"
	"SketchBoard/internal/network"
	"SketchBoard/internal/state"
	"SketchBoard/internal/storage"
	"SketchBoard/internal/ui"
)

const usage = `usage:
  sketchboard                          host a board
  sketchboard sketchboard://host:port  join a board
  sketchboard sketchboard://           join the first board found on the LAN
  sketchboard export <db> <out.png|out.pdf>`

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	args := os.Args
	switch {
	case len(args) == 1:
		err = runHost(cfg)
	case strings.HasPrefix(args[1], network.Scheme):
		err = runClient(cfg, args[1])
	case args[1] == "export" && len(args) == 4:
		err = runExport(cfg, args[2], args[3])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func runHost(cfg config.Config) error {
	log.Println("Starting as HOST")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	records, err := store.Load(ctx)
	if err != nil {
		return err
	}
	log.Printf("[STORE] loaded %d records from %s", len(records), cfg.DBPath)

	hub := network.NewHub(store, records)
	defer hub.Close()

	mux := http.NewServeMux()
	mux.Handle(network.Path, hub)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[HUB] listening on port %d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[HUB] serve: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
		defer stop()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if cfg.Advertise {
		adv, err := network.Advertise(cfg.Port)
		if err != nil {
			log.Printf("[MDNS] %v", err)
		} else {
			defer adv.Close()
		}
	}

	ip, err := network.OutgoingIP()
	if err != nil {
		log.Printf("[NET] %v", err)
		ip = "127.0.0.1"
	}
	link := network.ShareLink(ip, cfg.Port)
	log.Printf("Share link: %s", link)

	session := board.New(state.NewController(hub, cfg.Author), cfg.Width, cfg.Height)
	window := ui.NewApp("SketchBoard (host)", link, session, cfg.Width, cfg.Height)
	defer hub.Subscribe(session.Deliver)()
	go session.Run(ctx)

	window.Run()
	return nil
}

func runClient(cfg config.Config, link string) error {
	log.Println("Starting as CLIENT")
	addr, err := network.ParseLink(link)
	if err != nil {
		return err
	}
	if addr == "" {
		log.Printf("[MDNS] looking for a host for %s", cfg.DiscoverTimeout)
		if addr, err = network.Discover(cfg.DiscoverTimeout); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := network.NewClient(addr)
	defer client.Close()
	session := board.New(state.NewController(client, cfg.Author), cfg.Width, cfg.Height)
	window := ui.NewApp("SketchBoard", network.Scheme+addr, session, cfg.Width, cfg.Height)

	client.OnStatus = func(connected bool, detail string) {
		if connected {
			window.SetStatus("Connected to " + addr)
			// the link is back, retry what failed while it was down
			session.Flush()
			return
		}
		window.SetStatus("Reconnecting: " + detail)
	}
	client.Subscribe(session.Deliver)

	go session.Run(ctx)
	go func() {
		if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[CLIENT] %v", err)
			window.SetStatus("Disconnected: " + err.Error())
		}
	}()

	window.Run()
	return nil
}

func runExport(cfg config.Config, dbPath, out string) error {
	store, err := storage.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	records, err := store.Load(context.Background())
	if err != nil {
		return err
	}
	if err := ui.Export(out, records, cfg.Width, cfg.Height); err != nil {
		return err
	}
	log.Printf("[EXPORT] wrote %d records to %s", len(records), out)
	return nil
}

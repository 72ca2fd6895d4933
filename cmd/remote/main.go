package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hilthontt/remotepad/internal/infrastructure/configs"
	"github.com/hilthontt/remotepad/internal/infrastructure/logging"
	"github.com/hilthontt/remotepad/internal/motion"
	"github.com/hilthontt/remotepad/internal/pairing"
	"github.com/hilthontt/remotepad/internal/presentation/tui"
)

func main() {
	configFlag := flag.String("config", "", "path to config.yaml")
	serverFlag := flag.String("server", "", "relay base url")
	codeFlag := flag.String("code", "", "six character room code")
	urlFlag := flag.String("url", "", "pairing url scanned from the desktop")
	flag.Parse()

	cfg, err := configs.Load(configs.DetermineConfigPath(*configFlag))
	if err != nil {
		log.Fatal(err)
	}

	server, code := *serverFlag, *codeFlag
	if *urlFlag != "" {
		server, code, err = pairing.ParsePairingURL(*urlFlag)
		if err != nil {
			log.Fatal(err)
		}
	}
	if server == "" {
		server = cfg.Pairing.DefaultServerURL
	}

	// the TUI owns the terminal, so logs only go to the rotated file
	logCfg := cfg.Logger.Logging()
	logCfg.FileOnly = true
	if logCfg.FilePath == "" {
		logCfg.FilePath = "."
	}
	logger := logging.NewLogger(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := pairing.NewClient(pairing.ClientConfig{
		DefaultServerURL: cfg.Pairing.DefaultServerURL,
		ConnectTimeout:   cfg.Pairing.ConnectTimeout,
	}, logger)
	defer client.Disconnect()

	pad := pairing.NewTrackpad(client, cfg.Motion.Filter(), motion.RealScheduler, logger)
	defer pad.Close()

	model := tui.NewModel(ctx, client, server, code, tui.WithTouchpad(pad))
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

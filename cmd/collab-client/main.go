package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cwrk-planet/collab-client/chat"
	"github.com/cwrk-planet/collab-client/collab"
	"github.com/cwrk-planet/collab-client/config"
	"github.com/cwrk-planet/collab-client/pkg/logger"
	"github.com/cwrk-planet/collab-client/session"
	"github.com/cwrk-planet/collab-client/wire"
)

func main() {
	var (
		roomID    = flag.String("room", "", "room id")
		userID    = flag.String("user", "", "user id")
		shareFile = flag.String("share", "", "файл, которым поделиться с комнатой")
		language  = flag.String("lang", "plaintext", "язык шаримого буфера")
	)
	flag.Parse()
	if *roomID == "" || *userID == "" {
		log.Fatal("both -room and -user are required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})

	reg := session.NewRegistry(session.Config{
		URL:            cfg.Server.URL,
		HeartbeatEvery: cfg.Client.HeartbeatInterval(),
		ReconnectEvery: cfg.Client.ReconnectInterval(),
		MaxReconnects:  cfg.Client.MaxReconnects,
		DialTimeout:    cfg.Client.DialTimeoutD(),
	})
	defer reg.Close()

	t := reg.Get(*roomID)
	ev := t.Events()

	ev.OnStatus(func(s session.Status) {
		slog.Info("session status", "room", *roomID, "status", s)
	})
	ev.OnError(func(err error) {
		slog.Warn("session error", "err", err)
	})
	ev.OnOnlineList(func(p wire.OnlineListPayload) {
		users := make([]string, 0, len(p.Users))
		for _, u := range p.Users {
			users = append(users, u.UserID)
		}
		fmt.Printf("* online: %s\n", strings.Join(users, ", "))
	})

	tracker := chat.NewTracker()
	offChat := tracker.Attach(ev, func(m wire.Message) {
		fmt.Printf("[%s] %s\n", m.SenderID, m.Content)
	})
	defer offChat()

	viewer := collab.NewViewer(collab.ViewerConfig{
		SelfID:         *userID,
		DecorationTTL:  cfg.Client.DecorationTTLD(),
		SyncApplyDelay: cfg.Client.SyncApplyDelayD(),
		OnBufferReplaced: func(code, lang string) {
			fmt.Printf("--- shared buffer (%s, %d bytes) updated ---\n", lang, len(code))
		},
		OnDecoration: func(d collab.Decoration) {
			fmt.Printf("  ~ line %d %s\n", d.LineNumber, d.ChangeType)
		},
		OnShareStart: func(sharerID string) {
			fmt.Printf("* %s is sharing code\n", sharerID)
		},
		OnShareEnd: func() {
			fmt.Println("* sharing ended")
		},
	})
	offViewer := viewer.Attach(ev)
	defer offViewer()

	if err := t.Connect(context.Background(), *roomID, *userID); err != nil {
		log.Fatalf("connect: %v", err)
	}

	if *shareFile != "" {
		code, err := os.ReadFile(*shareFile)
		if err != nil {
			log.Fatalf("read share file: %v", err)
		}
		sharer := collab.NewSharer(t, *language, cfg.Client.DiffDebounceD())
		sharer.Start(string(code))
		defer sharer.End()
	}

	// stdin → чат; каждая строка уходит с pending-подтверждением
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			text := strings.TrimSpace(sc.Text())
			if text == "" {
				continue
			}
			msg := wire.New(wire.KindChat, *roomID, *userID)
			msg.Content = text
			msg.CorrelationID = wire.NewCorrelationID()

			tracker.Track(msg.CorrelationID)
			t.Send(msg)
			tracker.MarkSent(msg.CorrelationID)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutdown signal", "sig", sig)
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eventmatch/chat-client/internal/api"
	"github.com/eventmatch/chat-client/internal/chat"
	"github.com/eventmatch/chat-client/internal/config"
	"github.com/eventmatch/chat-client/internal/models"
	"github.com/eventmatch/chat-client/internal/session"
	"github.com/eventmatch/chat-client/internal/socket"
	"github.com/eventmatch/chat-client/internal/unread"
)

var (
	eventID int
	matchID int
)

func main() {
	root := &cobra.Command{
		Use:   "chatwatch",
		Short: "Watch conversations and unread state for an event-chat session",
		Long: `chatwatch connects with the credentials from the environment, keeps the
unread index live and, when --match is given, tails that conversation and
sends stdin lines into it.`,
		RunE: run,
	}
	root.Flags().IntVar(&eventID, "event", 0, "event room to subscribe for ambient notifications")
	root.Flags().IntVar(&matchID, "match", 0, "conversation to open and tail")

	if err := root.Execute(); err != nil {
		color.Red("chatwatch: %v", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	creds := session.NewStatic(cfg.AuthToken, cfg.Role)
	userID, err := session.UserIDFromToken(creds.Token())
	if err != nil {
		return err
	}

	apiClient := api.NewClient(cfg.APIBaseURL, creds, log)
	sock := socket.NewClient(cfg.SocketURL, log)
	defer sock.Disconnect()

	offStatus := sock.OnStatus(func(s socket.Status) {
		switch s {
		case socket.StatusConnected:
			color.Green("● connected")
		case socket.StatusConnecting:
			color.Yellow("● reconnecting")
		case socket.StatusDisconnected:
			color.Red("● disconnected")
		}
	})
	defer offStatus()

	agg := unread.New(apiClient, sock, log)
	defer agg.Close()

	sock.Connect(creds.Token())

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if err := agg.Start(ctx); err != nil {
		return err
	}

	if eventID != 0 {
		notifier := chat.NewNotifier(sock, log)
		defer notifier.Close()
		if err := notifier.Join(eventID); err != nil {
			log.Warn("event join failed", zap.Int("event_id", eventID), zap.Error(err))
		}
		defer notifier.OnUserJoined(func(p models.UserJoinedPush) {
			color.Cyan("new participant in event %d: %s", p.EventID, p.Participant.Name)
		})()
		defer notifier.OnNewMatch(func(m models.NewMatchPush) {
			color.Magenta("new match! conversation %d with %s", m.MatchID, m.Participant.Name)
		})()
	}

	if matchID != 0 {
		if err := openThread(ctx, sock, apiClient, agg, userID, log); err != nil {
			return err
		}
	}

	go watchBadges(ctx, agg)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	return nil
}

func openThread(ctx context.Context, sock *socket.Client, apiClient *api.Client, agg *unread.Aggregator, userID int, log *zap.Logger) error {
	channel := chat.NewChannel(sock, apiClient, userID, log)

	detail, err := apiClient.LoadOne(ctx, matchID)
	if err != nil {
		return err
	}
	if err := channel.Join(matchID); err != nil {
		return err
	}
	channel.SeedHistory(matchID, detail.Messages)
	agg.SetActiveConversation(matchID)
	agg.MarkConversationAsRead(matchID)

	for _, m := range detail.Messages {
		printMessage(userID, m.SenderID, m.Content)
	}

	channel.Subscribe(func(u chat.Update) {
		switch u.Kind {
		case chat.UpdateMessage:
			printMessage(userID, u.Message.SenderID, u.Message.Content)
		case chat.UpdateTyping:
			if len(u.Typing) > 0 {
				color.HiBlack("… typing")
			}
		case chat.UpdateRead:
			color.HiBlack("✓ read")
		}
	})

	if !detail.Conversation.CanSend() {
		color.Yellow("this conversation is closed; watching only")
		return nil
	}

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			channel.SetTyping(true)
			if _, err := channel.Send(ctx, line); err != nil {
				color.Red("send failed: %v", err)
			}
		}
	}()
	return nil
}

// watchBadges polls the aggregator the way navigation badges would.
func watchBadges(ctx context.Context, agg *unread.Aggregator) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	last := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := agg.HasUnreadGeneral()
			if now != last {
				last = now
				if now {
					color.Yellow("◉ unread conversations")
				} else {
					color.Green("○ all read")
				}
			}
		}
	}
}

func printMessage(userID, senderID int, content string) {
	if senderID == userID {
		fmt.Printf("%s %s\n", color.BlueString("me:"), content)
	} else {
		fmt.Printf("%s %s\n", color.WhiteString("them:"), content)
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = lvl
	return cfg.Build()
}

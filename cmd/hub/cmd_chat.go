package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"engineerhub/cmd/hub/chatview"
	"engineerhub/internal/api"
	"engineerhub/internal/chat"
	"engineerhub/internal/config"
	"engineerhub/internal/logging"
	"engineerhub/internal/paging"
	"engineerhub/internal/query"
)

// chatCmd opens a conversation
var chatCmd = &cobra.Command{
	Use:   "chat <conversation-id>",
	Short: "Open a real-time chat conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid conversation id %q", args[0])
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	me := query.New[api.User](a.queries, "me", a.api.Me())
	defer me.Close()
	conversations := query.New[paging.Page[api.Conversation]](a.queries, "conversations",
		func(ctx context.Context) (paging.Page[api.Conversation], error) {
			return a.api.Conversations()(ctx, 1, cfg.Paging.PageSize)
		})
	defer conversations.Close()

	if err := query.NewGroup(me, conversations).Mount(ctx); err != nil {
		return err
	}
	if st := me.State(); st.Err != nil {
		return fmt.Errorf("failed to load profile: %w", st.Err)
	}

	channel := chat.NewChannel(chat.Options{
		URL:                  cfg.ChatRoomURL(id),
		Token:                cfg.API.Token,
		ReconnectInterval:    cfg.GetReconnectInterval(),
		MaxReconnectAttempts: cfg.Chat.MaxReconnectAttempts,
	})
	channel.OnReconnect(a.queries.Reconnect)

	room := chat.NewRoom(id, me.State().Data.Username, channel)
	history := paging.NewSession(a.api.Messages(id), paging.Options{
		PageSize: cfg.Paging.PageSize,
		Mode:     paging.Infinite,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Logging settings follow the config file while the view is open.
	watcher, err := config.NewWatcher(cfgPath, 0, func(next *config.Config) {
		if verbose {
			next.Logging.DebugMode = true
			next.Logging.Level = "debug"
		}
		if err := configureLogging(next, true); err != nil {
			logging.ConfigWarn("logging not reconfigured: %v", err)
		}
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(runCtx); err != nil {
		logging.ConfigWarn("config changes will not be picked up: %v", err)
	}
	defer watcher.Stop()

	var eg errgroup.Group
	eg.Go(func() error {
		a.queries.Cache.Run(runCtx)
		return nil
	})
	eg.Go(func() error {
		if err := channel.Run(runCtx); err != nil {
			logging.ChatWarn("conversation %d: %v", id, err)
		}
		return nil
	})

	err = chatview.Run(runCtx, chatview.Deps{
		Room:          room,
		Channel:       channel,
		History:       history,
		Queries:       a.queries,
		Conversations: conversations,
		Styles:        stylesFor(ctx, cfg),
	})
	cancel()
	channel.Close()
	_ = eg.Wait()
	return err
}

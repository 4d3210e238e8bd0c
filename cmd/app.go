package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/iksnae/doc-chat/internal"
	"github.com/iksnae/doc-chat/internal/api"
	"github.com/iksnae/doc-chat/internal/directory"
	"github.com/iksnae/doc-chat/internal/reveal"
	"github.com/iksnae/doc-chat/internal/turn"
	"github.com/iksnae/doc-chat/internal/upload"
)

// app wires the client components for one command invocation
type app struct {
	client   *api.Client
	turns    *turn.Coordinator
	uploader *upload.Controller
}

func newApp(opts turn.Options) (*app, error) {
	client, err := api.NewClient(cfg.Server, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	if opts.HistoryTTL == 0 {
		opts.HistoryTTL = cfg.HistoryTTL
	}

	return &app{
		client:   client,
		turns:    turn.New(directory.New(), reveal.New(cfg.Reveal.Interval, cfg.Reveal.Unit), client, opts),
		uploader: upload.NewController(client),
	}, nil
}

// sync loads the backend's conversation list into the directory
func (a *app) sync(ctx context.Context) error {
	if _, err := a.turns.Sync(ctx); err != nil {
		return fmt.Errorf("failed to list chats from %s: %w", a.client.BaseURL(), err)
	}
	return nil
}

// resolve finds a session by exact id, then document id, then unique id prefix
func (a *app) resolve(ref string) (internal.Session, error) {
	ref = strings.TrimSpace(ref)
	dir := a.turns.Directory()

	if s, ok := dir.Get(ref); ok {
		return s, nil
	}
	if s, ok := dir.FindByDocument(ref); ok {
		return s, nil
	}

	var matches []internal.Session
	if ref != "" {
		for _, s := range dir.List() {
			if strings.HasPrefix(s.ID, ref) {
				matches = append(matches, s)
			}
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return internal.Session{}, &internal.ValidationError{
			Field:  "session",
			Reason: fmt.Sprintf("no chat matches %q (use 'doc-chat list' to see available chats)", ref),
			Err:    internal.ErrNotFound,
		}
	default:
		return internal.Session{}, &internal.ValidationError{
			Field:  "session",
			Reason: fmt.Sprintf("%q matches %d chats, use a longer id", ref, len(matches)),
			Err:    internal.ErrNotFound,
		}
	}
}

// Package app wires the daemon together: store, provider, dispatcher, and
// orchestrator, plus the local line-oriented channel cosmod serves on stdin.
package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cosmo-os/cosmo/common/redact"
	"github.com/cosmo-os/cosmo/common/retry"
	"github.com/cosmo-os/cosmo/internal/cosmo/config"
	"github.com/cosmo-os/cosmo/internal/cosmo/dispatch"
	"github.com/cosmo-os/cosmo/internal/cosmo/llm"
	"github.com/cosmo-os/cosmo/internal/cosmo/orchestrator"
	"github.com/cosmo-os/cosmo/internal/cosmo/prompt"
	"github.com/cosmo-os/cosmo/internal/cosmo/store"
	"github.com/cosmo-os/cosmo/internal/cosmo/tools"
)

// sweepInterval is how often expired confirmations are purged in the
// background.
const sweepInterval = time.Minute

// App is the assembled daemon.
type App struct {
	cfg          *config.Config
	store        *store.Store
	dispatcher   *dispatch.Dispatcher
	orchestrator *orchestrator.Orchestrator
}

// New builds the daemon from configuration. The store is opened and migrated
// here; everything else is pure wiring.
func New(cfg *config.Config) (*App, error) {
	s, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	provider, err := llm.New(cfg.LLM())
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("build provider: %w", err)
	}
	provider = llm.WithRetry(provider, retry.DefaultConfig)

	catalog, err := tools.NewCatalog()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("build tool catalog: %w", err)
	}

	atoms := store.NewAtoms(s)
	prefs := store.NewPreferences(s)
	quests := store.NewQuests(s)
	conversations := store.NewConversations(s)

	dispatcher := dispatch.New(catalog, dispatch.Deps{
		Atoms:  atoms,
		Prefs:  prefs,
		Search: store.NewSearch(s),
		Quests: quests,
	}, cfg.ConfirmTTL)

	orch := orchestrator.New(orchestrator.Deps{
		Provider:      provider,
		Model:         cfg.Model,
		Catalog:       catalog,
		Assembler:     &prompt.Builder{Atoms: atoms, Quests: quests, Conversations: conversations},
		Conversations: conversations,
		Prefs:         prefs,
		Runner:        dispatcher,
	})

	slog.Info("cosmo assembled", "config", redact.Map(map[string]any{
		"backend":  cfg.Backend,
		"model":    cfg.Model,
		"database": cfg.DatabasePath,
		"api_key":  cfg.APIKey,
	}))
	return &App{cfg: cfg, store: s, dispatcher: dispatcher, orchestrator: orch}, nil
}

// ProcessTurn handles one utterance for an embedding surface.
func (a *App) ProcessTurn(ctx context.Context, conversationID, channel, text string) (*orchestrator.Turn, error) {
	return a.orchestrator.ProcessTurn(ctx, conversationID, channel, text)
}

// Run serves the local stdin channel until the input closes or a signal
// arrives. Each line is one turn; "/confirm <id>" and "/reject <id>" resolve
// pending confirmations out of band, the way a richer surface would.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.dispatcher.Confirmations().StartSweeper(ctx, sweepInterval)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig.String())
		cancel()
		os.Stdin.Close()
	}()

	return a.serve(ctx, os.Stdin, os.Stdout)
}

func (a *App) serve(ctx context.Context, in io.Reader, out io.Writer) error {
	// One conversation per process lifetime on this channel.
	conversationID := ""
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if reply, handled := a.handleCommand(ctx, line); handled {
			fmt.Fprintln(out, reply)
			continue
		}

		turn, err := a.orchestrator.ProcessTurn(ctx, conversationID, "stdin", line)
		if err != nil {
			slog.Error("turn failed", "error", err)
		}
		if turn != nil {
			conversationID = turn.ConversationID
			fmt.Fprintln(out, turn.Reply)
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

// handleCommand resolves the confirmation slash commands. Anything else goes
// to the model.
func (a *App) handleCommand(ctx context.Context, line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return "", false
	}
	switch fields[0] {
	case "/confirm":
		return formatResult(a.dispatcher.Confirm(ctx, fields[1])), true
	case "/reject":
		return formatResult(a.dispatcher.Reject(fields[1])), true
	}
	return "", false
}

func formatResult(result map[string]any) string {
	if msg, ok := result["error"].(string); ok {
		return "error: " + msg
	}
	return "done"
}

// Stop releases held resources. Safe to call after a failed Run.
func (a *App) Stop() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Warn("failed to close store", "error", err)
		}
	}
}

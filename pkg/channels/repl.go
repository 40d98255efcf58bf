package channels

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mschweiger/twin/pkg/agent"
	"github.com/mschweiger/twin/pkg/persona"
)

// REPL is the local console surface. The context-mode selector is sticky
// across turns, like the page's dropdown.
type REPL struct {
	session *agent.Session
	mode    persona.Mode
}

func NewREPL(session *agent.Session) *REPL {
	return &REPL{session: session, mode: persona.ModeAuto}
}

func (r *REPL) Name() string { return "repl" }

func (r *REPL) Run(ctx context.Context) error {
	rl, err := readline.New("Du> ")
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	fmt.Println("Mike Schweiger - Digital Twin")
	fmt.Println("Befehle: /mode auto|business|private|brand, /facts, /reset, /quit")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.handleCommand(ctx, line); quit {
				return nil
			}
			continue
		}

		turn, err := r.session.HandleText(ctx, line, r.mode)
		if err != nil {
			fmt.Printf("Fehler: %v\n", err)
			continue
		}
		fmt.Printf("MS> %s\n", turn.Assistant.Content)
	}
}

func (r *REPL) handleCommand(ctx context.Context, line string) (quit bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/mode":
		if len(fields) < 2 {
			fmt.Printf("Aktueller Modus: %s\n", r.mode)
			return false
		}
		r.mode = persona.ParseMode(fields[1])
		fmt.Printf("Modus: %s\n", r.mode)
	case "/facts":
		facts, err := r.session.Facts(ctx, 50)
		if err != nil {
			fmt.Printf("Fehler: %v\n", err)
			return false
		}
		if len(facts) == 0 {
			fmt.Println("Keine Fakten gespeichert.")
			return false
		}
		for _, f := range facts {
			fmt.Printf("  [%s] %s = %s\n", f.Category, f.Key, f.Value)
		}
	case "/reset":
		if err := r.session.Reset(ctx); err != nil {
			fmt.Printf("Fehler: %v\n", err)
			return false
		}
		fmt.Println("Gespräch neu gestartet.")
	default:
		fmt.Printf("Unbekannter Befehl: %s\n", fields[0])
	}
	return false
}

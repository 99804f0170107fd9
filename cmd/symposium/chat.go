package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/PabloGalante/symposium/internal/animation"
	"github.com/PabloGalante/symposium/internal/app/conversation"
	"github.com/PabloGalante/symposium/internal/config"
	"github.com/PabloGalante/symposium/internal/domain"
	"github.com/PabloGalante/symposium/internal/observability"
)

const chatHelp = `Commands:
  /stop               interrupt the current reply
  /shorten, /lengthen rewrite the last reply
  /context            summarize the conversation
  /title <text>       rename the session
  /quit               leave`

type chatFlags struct {
	personas []string
	group    string
	user     string
	title    string
}

func newChatCmd(cfg *config.Config) *cobra.Command {
	var flags chatFlags

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with one persona or watch several debate, in the terminal",
		Example: `  symposium chat --persona socrates
  symposium chat --persona plato --persona nietzsche
  symposium chat --group debate_club`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("log-level") {
				// Logs share stdout with the conversation.
				observability.SetLevel(slog.LevelError)
			}
			return runChat(cmd.Context(), cfg, flags, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&flags.personas, "persona", nil, "persona id; repeat for a debate")
	f.StringVar(&flags.group, "group", "", "predefined debate group id")
	f.StringVar(&flags.user, "user", "local", "user id owning the session")
	f.StringVar(&flags.title, "title", "", "session title")
	cmd.MarkFlagsMutuallyExclusive("persona", "group")
	cmd.MarkFlagsOneRequired("persona", "group")
	return cmd
}

func runChat(ctx context.Context, cfg *config.Config, flags chatFlags, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = a.Close(cctx)
	}()

	var target domain.ChatTarget
	switch {
	case flags.group != "":
		target, err = a.catalog.GroupTarget(flags.group)
	case len(flags.personas) == 1:
		target, err = a.catalog.PersonaTarget(domain.PersonaID(flags.personas[0]))
	default:
		members := make([]domain.PersonaID, 0, len(flags.personas))
		for _, p := range flags.personas {
			members = append(members, domain.PersonaID(p))
		}
		target, err = a.catalog.CustomTarget(members, time.Now())
	}
	if err != nil {
		return err
	}

	started, err := a.svc.StartSession(ctx, conversation.StartSessionInput{
		UserID: domain.UserID(flags.user),
		Target: target,
		Title:  flags.title,
	})
	if err != nil {
		return err
	}
	session := started.Session

	r := newRenderer(out, a.catalog)
	frames, unsubscribe := a.svc.Subscribe(session.ID)
	defer unsubscribe()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	r.banner(session)
	c := &chat{svc: a.svc, session: session, r: r}
	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			r.frame(f)
			if f.Final && !f.Sender.IsUser() {
				c.lastReply = f.MessageID
			}
		case line, ok := <-lines:
			if !ok {
				c.drain(ctx, frames)
				return nil
			}
			if quit := c.handle(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

type chat struct {
	svc       *conversation.Service
	session   *domain.Session
	r         *renderer
	lastReply domain.MessageID
}

// handle runs one input line and reports whether the user asked to leave.
func (c *chat) handle(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		_, err := c.svc.SendMessage(ctx, conversation.SendMessageInput{SessionID: c.session.ID, Text: line})
		c.r.err(err)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/stop":
		c.r.err(c.svc.Stop(ctx, c.session.ID))
	case "/shorten", "/lengthen":
		if c.lastReply == "" {
			c.r.notice("nothing to rewrite yet")
			return false
		}
		mode := domain.RegenerateShorten
		if cmd == "/lengthen" {
			mode = domain.RegenerateLengthen
		}
		_, err := c.svc.Regenerate(ctx, c.session.ID, c.lastReply, mode)
		c.r.err(err)
	case "/context":
		cc, err := c.svc.RefreshContext(ctx, c.session.ID)
		if err != nil {
			c.r.err(err)
			return false
		}
		c.r.context(cc)
	case "/title":
		c.r.err(c.svc.RenameSession(ctx, c.session.ID, arg))
	default:
		c.r.notice(chatHelp)
	}
	return false
}

// drain waits for a running turn to finish rendering once input ends.
func (c *chat) drain(ctx context.Context, frames <-chan animation.Frame) {
	turn, ok := c.svc.ActiveTurn(c.session.ID)
	if !ok {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			c.r.frame(f)
		case <-turn.Done():
			for {
				select {
				case f := <-frames:
					c.r.frame(f)
				default:
					return
				}
			}
		}
	}
}

// renderer prints frame deltas with one lipgloss style per speaker.
type renderer struct {
	out     io.Writer
	names   map[domain.Sender]string
	styles  map[domain.Sender]lipgloss.Style
	shown   map[domain.MessageID]int
	current domain.MessageID

	title  lipgloss.Style
	muted  lipgloss.Style
	errors lipgloss.Style
}

func newRenderer(out io.Writer, dir domain.PersonaDirectory) *renderer {
	r := &renderer{
		out:    out,
		names:  make(map[domain.Sender]string),
		styles: make(map[domain.Sender]lipgloss.Style),
		shown:  make(map[domain.MessageID]int),
		title:  lipgloss.NewStyle().Bold(true).Underline(true),
		muted:  lipgloss.NewStyle().Faint(true),
		errors: lipgloss.NewStyle().Foreground(lipgloss.Color("#D9534F")),
	}
	for _, p := range dir.List() {
		sender := domain.PersonaSender(p.ID)
		r.names[sender] = p.DisplayName
		style := lipgloss.NewStyle().Bold(true)
		if p.Color != "" {
			style = style.Foreground(lipgloss.Color(p.Color))
		}
		r.styles[sender] = style
	}
	return r
}

func (r *renderer) banner(s *domain.Session) {
	fmt.Fprintln(r.out, r.title.Render(s.Title))
	fmt.Fprintln(r.out, r.muted.Render("Type a message, or /help for commands."))
}

func (r *renderer) frame(f animation.Frame) {
	if f.Sender.IsUser() {
		return
	}
	visible := animation.StripCursor(f.Text)
	shown, seen := r.shown[f.MessageID]
	if !seen || r.current != f.MessageID {
		r.endLine()
		name, ok := r.names[f.Sender]
		if !ok {
			name = string(f.Sender)
		}
		style, ok := r.styles[f.Sender]
		if !ok {
			style = r.errors
		}
		fmt.Fprint(r.out, style.Render(name+":")+" ")
		r.current = f.MessageID
		if seen && shown > 0 {
			// Interleaved speaker resumed on a fresh line.
			fmt.Fprint(r.out, r.muted.Render("… "))
		}
	}
	if len(visible) > shown {
		fmt.Fprint(r.out, visible[shown:])
		r.shown[f.MessageID] = len(visible)
	} else if !seen {
		r.shown[f.MessageID] = shown
	}
	if f.Final {
		fmt.Fprintln(r.out)
		r.current = ""
	}
}

func (r *renderer) endLine() {
	if r.current != "" {
		fmt.Fprintln(r.out)
		r.current = ""
	}
}

func (r *renderer) context(c domain.ChatContext) {
	r.endLine()
	fmt.Fprintln(r.out, r.title.Render("Summary"))
	for _, s := range c.Summary {
		fmt.Fprintln(r.out, "  • "+s)
	}
	if len(c.KeyConcepts) > 0 {
		fmt.Fprintln(r.out, r.title.Render("Key concepts"))
		for _, k := range c.KeyConcepts {
			fmt.Fprintf(r.out, "  %s: %s\n", lipgloss.NewStyle().Bold(true).Render(k.Term), k.Definition)
		}
	}
}

func (r *renderer) notice(msg string) {
	r.endLine()
	fmt.Fprintln(r.out, r.muted.Render(msg))
}

func (r *renderer) err(err error) {
	if err == nil {
		return
	}
	r.endLine()
	msg := err.Error()
	if errors.Is(err, domain.ErrTurnInProgress) {
		msg = "still answering; use /stop first"
	}
	fmt.Fprintln(r.out, r.errors.Render(msg))
}

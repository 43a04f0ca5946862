// Command pulsechat is a terminal client for a pulsechat server.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vedran77/pulsechat/internal/chat"
	"github.com/vedran77/pulsechat/internal/chat/httpbackend"
	"github.com/vedran77/pulsechat/internal/chat/memory"
	"github.com/vedran77/pulsechat/internal/config"
	"github.com/vedran77/pulsechat/internal/observability"
)

func main() {
	cfg := config.LoadClient()

	var (
		server  = flag.String("server", cfg.ServerURL, "server base URL")
		email   = flag.String("email", cfg.Email, "login email")
		offline = flag.Bool("offline", false, "run against an in-memory backend with demo data")
	)
	flag.Parse()

	observability.SetupLoggerTo(os.Stderr, cfg.LogLevel, true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		backend chat.Backend
		selfID  uuid.UUID
		err     error
	)
	if *offline {
		backend, selfID = offlineBackend()
	} else {
		backend, selfID, err = login(ctx, *server, *email, cfg.Password)
		if err != nil {
			log.Fatal().Err(err).Msg("login failed")
		}
	}

	session := chat.NewSession(backend, selfID, chat.SessionConfig{
		PageSize: cfg.PageSize,
		Platform: &terminalPlatform{out: os.Stdout, permission: chat.ParsePermission(cfg.Notifications)},
	})
	defer session.Close()

	ui := &repl{session: session, out: os.Stdout}
	session.OnChange(ui.render)

	if err := session.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("load channels")
	}
	ui.listChannels()

	if err := ui.run(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("client stopped")
	}
}

func login(ctx context.Context, server, email, password string) (*httpbackend.Client, uuid.UUID, error) {
	if email == "" || password == "" {
		return nil, uuid.Nil, errors.New("set PULSECHAT_EMAIL and PULSECHAT_PASSWORD or pass -email")
	}
	client := httpbackend.New(server, nil)
	u, err := client.Login(ctx, email, password)
	if err != nil {
		return nil, uuid.Nil, err
	}
	return client, u.ID, nil
}

// offlineBackend seeds a store with two users and a public channel.
func offlineBackend() (chat.Backend, uuid.UUID) {
	store := memory.NewStore()
	ana := store.AddUser("ana", "Ana Kovač")
	marko := store.AddUser("marko", "")

	ctx := context.Background()
	peer := store.For(marko.ID)
	ch, err := peer.InsertChannel(ctx, "general", marko.ID, false)
	if err == nil {
		peer.InsertMembership(ctx, ch.ID, marko.ID)
		for _, line := range []string{"welcome to pulsechat", "try /dm marko"} {
			peer.InsertMessage(ctx, ch.ID, marko.ID, line, "")
		}
	}
	return store.For(ana.ID), ana.ID
}

type terminalPlatform struct {
	out        io.Writer
	permission chat.Permission
}

func (p *terminalPlatform) Permission() chat.Permission { return p.permission }

func (p *terminalPlatform) RequestPermission(context.Context) (chat.Permission, error) {
	// A terminal has nobody to ask; an undecided setting means yes.
	p.permission = chat.PermissionGranted
	return p.permission, nil
}

func (p *terminalPlatform) PlaySound(context.Context) error {
	_, err := io.WriteString(p.out, "\a")
	return err
}

type repl struct {
	session *chat.Session
	out     io.Writer
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	r.prompt()
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			r.prompt()
			continue
		}
		if line == "/quit" {
			return nil
		}
		if err := r.handle(ctx, line); err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
		r.prompt()
	}
	return scanner.Err()
}

func (r *repl) prompt() {
	name := "-"
	if st := r.session.Active(); st != nil {
		name = st.Conversation().Name()
	}
	fmt.Fprintf(r.out, "[%s] > ", name)
}

func (r *repl) handle(ctx context.Context, line string) error {
	if !strings.HasPrefix(line, "/") {
		_, err := r.session.Send(ctx, line)
		return err
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/channels":
		if err := r.session.Directory.Refresh(ctx); err != nil {
			return err
		}
		r.listChannels()
	case "/open":
		ch, ok := r.session.Directory.ChannelByName(arg)
		if !ok {
			return fmt.Errorf("no channel named %q", arg)
		}
		_, err := r.session.Open(ctx, &ch)
		return err
	case "/join":
		_, err := r.session.Join(ctx, arg)
		return err
	case "/create":
		_, err := r.session.CreateChannel(ctx, arg)
		return err
	case "/dm":
		otherID, err := r.resolveUser(arg)
		if err != nil {
			return err
		}
		_, err = r.session.OpenDM(ctx, otherID)
		return err
	case "/older":
		res, err := r.session.LoadOlder(ctx)
		if err != nil {
			return err
		}
		if res.Exhausted && res.Added == 0 {
			fmt.Fprintln(r.out, "(beginning of conversation)")
		}
	case "/delete":
		return r.session.DeleteActive(ctx)
	case "/who":
		return r.who(ctx)
	case "/help":
		fmt.Fprintln(r.out, "/channels /open NAME /join NAME /create NAME /dm USER-ID /older /delete /who /quit")
	default:
		return fmt.Errorf("unknown command %s, try /help", cmd)
	}
	return nil
}

// resolveUser accepts a user id, or a member name of the active channel.
func (r *repl) resolveUser(arg string) (uuid.UUID, error) {
	if id, err := uuid.Parse(arg); err == nil {
		return id, nil
	}
	st := r.session.Active()
	if st == nil {
		return uuid.Nil, fmt.Errorf("%q is not a user id", arg)
	}
	for _, p := range st.Conversation().Members {
		if strings.EqualFold(p.DisplayName, arg) {
			return p.UserID, nil
		}
	}
	for _, e := range st.Entries() {
		if strings.EqualFold(e.Sender.DisplayName, arg) {
			return e.Sender.UserID, nil
		}
	}
	return uuid.Nil, fmt.Errorf("unknown user %q", arg)
}

func (r *repl) who(ctx context.Context) error {
	st := r.session.Active()
	if st == nil {
		return chat.ErrNoActiveChannel
	}
	id, ok := st.ChannelID()
	if !ok {
		for _, p := range st.Conversation().Members {
			fmt.Fprintf(r.out, "  %s (%s)\n", p.DisplayName, p.Initials)
		}
		return nil
	}
	members, err := r.session.Directory.Members(ctx, id)
	if err != nil {
		return err
	}
	for _, p := range members {
		fmt.Fprintf(r.out, "  %s (%s)\n", p.DisplayName, p.Initials)
	}
	return nil
}

func (r *repl) listChannels() {
	channels := r.session.Directory.Channels()
	if len(channels) == 0 {
		fmt.Fprintln(r.out, "no channels yet, /create one")
		return
	}
	for _, ch := range channels {
		kind := "#"
		if ch.IsPrivate {
			kind = "@"
		}
		fmt.Fprintf(r.out, "  %s%s\n", kind, ch.Name)
	}
}

func (r *repl) render(c chat.Change) {
	switch c.Kind {
	case chat.ChangeInserted, chat.ChangeHistory, chat.ChangeReconciled:
		for _, e := range c.Entries {
			r.printEntry(e)
		}
	case chat.ChangeRemoved:
		fmt.Fprintf(r.out, "\n(message %s was not delivered)\n", c.Key)
	case chat.ChangeTrimmed:
		fmt.Fprintf(r.out, "\n(%d older messages hidden after reconnecting, /older to reload)\n", len(c.Entries))
	case chat.ChangeClosed:
		if c.Err != nil {
			fmt.Fprintf(r.out, "\n(conversation closed: %v)\n", c.Err)
		}
	}
}

func (r *repl) printEntry(e chat.Entry) {
	mark := ""
	if e.IsPending() {
		mark = " …"
	}
	fmt.Fprintf(r.out, "\r%s %s: %s%s\n", e.Message.CreatedAt.Local().Format("15:04"), e.Sender.DisplayName, e.Message.Content, mark)
}

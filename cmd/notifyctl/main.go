package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"intranet/internal/config"
	"intranet/internal/domain/notification"
	"intranet/internal/effects"
	"intranet/internal/gateway"
	jwtsvc "intranet/internal/pkg/jwt"
	"intranet/internal/pkg/logger"
	"intranet/internal/session"
)

const helpText = `commands:
  list                 notifications held by the session (* = unread)
  history [n]          last n notifications from the server (default 20)
  read <id>            mark one as read
  readall              mark everything as read
  count                ask the server for the unread count
  delete <id>          delete a notification
  archive <id>         archive a notification
  status               connection state and unread count
  login                start a new session
  logout               stop the session and clear local state
  quit`

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	token, err := resolveToken(cfg)
	if err != nil {
		log.Fatal("no usable token", zap.Error(err))
	}

	invalidator, closeRedis := buildInvalidator(cfg, log)
	defer closeRedis()

	manager := session.NewManager(session.Options{
		WebSocketURL: cfg.WebSocketURL(),
		APIBaseURL:   cfg.APIBaseURL(),
		Toaster:      effects.NewTerminalToaster(os.Stdout),
		Audio:        effects.BellPlayer{Out: os.Stdout, AssetPath: cfg.AlertSound},
		Invalidator:  invalidator,
		Logger:       log,
	})
	defer manager.Close()

	manager.SetAuth(ctx, token, true)

	r := &repl{
		ctx:     ctx,
		cfg:     cfg,
		token:   token,
		manager: manager,
		out:     os.Stdout,
	}
	r.run(os.Stdin)
}

func resolveToken(cfg *config.ClientConfig) (string, error) {
	if cfg.Token != "" {
		return cfg.Token, nil
	}
	return jwtsvc.New(cfg.JWTSecret, 24*time.Hour).GenerateToken(cfg.UserID, "employee")
}

// buildInvalidator always logs invalidations locally and also publishes them to Redis when configured.
func buildInvalidator(cfg *config.ClientConfig, log *zap.Logger) (effects.Invalidator, func()) {
	registry := effects.NewRegistry()
	for _, d := range []effects.Domain{
		effects.DomainEvents, effects.DomainJobs, effects.DomainFeed, effects.DomainSocial,
		effects.DomainPosts, effects.DomainFlaggedContent, effects.DomainAdmin,
		effects.DomainModerationQueue, effects.DomainProfile, effects.DomainUsers, effects.DomainEntity,
	} {
		registry.Register(d, func(k effects.Key) {
			log.Debug("cache invalidated", zap.String("key", k.String()))
		})
	}

	if cfg.RedisAddr == "" {
		return registry, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ri := effects.NewRedisInvalidator(client, cfg.RedisPrefix)
	log.Info("publishing cache invalidations", zap.String("addr", cfg.RedisAddr), zap.String("channel", ri.Channel()))
	return effects.MultiInvalidator{registry, ri}, func() { _ = client.Close() }
}

type repl struct {
	ctx     context.Context
	cfg     *config.ClientConfig
	token   string
	manager *session.Manager
	out     io.Writer
}

func (r *repl) run(in io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Fprintln(r.out, `type "help" for commands`)
	for {
		select {
		case <-r.ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !r.exec(strings.Fields(line)) {
				return
			}
		}
	}
}

// exec runs one command line. It returns false on quit.
func (r *repl) exec(args []string) bool {
	if len(args) == 0 {
		return true
	}

	cmd := strings.ToLower(args[0])
	switch cmd {
	case "quit", "exit":
		return false
	case "help":
		fmt.Fprintln(r.out, helpText)
		return true
	case "login":
		r.manager.SetAuth(r.ctx, r.token, true)
		fmt.Fprintln(r.out, "session started")
		return true
	case "logout":
		r.manager.SetAuth(r.ctx, "", false)
		fmt.Fprintln(r.out, "signed out")
		return true
	}

	s := r.manager.Current()
	if s == nil {
		fmt.Fprintln(r.out, `signed out, use "login"`)
		return true
	}

	switch cmd {
	case "list":
		r.printList(s)
	case "history":
		r.printHistory(args[1:])
	case "status":
		state := "disconnected"
		if s.IsConnected() {
			state = "connected"
		}
		fmt.Fprintf(r.out, "%s, %d unread\n", state, s.UnreadCount())
	case "read":
		if id, ok := r.idArg(args); ok {
			s.MarkAsRead(id)
		}
	case "readall":
		s.MarkAllAsRead()
	case "count":
		s.RefreshUnreadCount()
	case "delete", "archive":
		id, ok := r.idArg(args)
		if !ok {
			break
		}
		ctx, cancel := context.WithTimeout(r.ctx, 15*time.Second)
		defer cancel()
		op := s.Delete
		if cmd == "archive" {
			op = s.Archive
		}
		// failures are already surfaced as toasts
		_ = op(ctx, id)
	default:
		fmt.Fprintf(r.out, "unknown command %q\n", cmd)
	}
	return true
}

func (r *repl) idArg(args []string) (string, bool) {
	if len(args) < 2 {
		fmt.Fprintf(r.out, "usage: %s <id>\n", args[0])
		return "", false
	}
	return args[1], true
}

func (r *repl) printList(s *session.Session) {
	writeList(r.out, s.Notifications(), s.UnreadCount())
}

// writeList prints the session list; read entries stay listed, so unread is reported apart.
func writeList(w io.Writer, list []notification.Notification, unread int) {
	if len(list) == 0 {
		fmt.Fprintf(w, "no notifications, %d unread\n", unread)
		return
	}
	for _, n := range list {
		fmt.Fprintf(w, "%s %s  %-8s %-24s %s\n", unreadMark(n.IsRead), n.ID, n.Priority, n.Type, n.Title)
	}
	fmt.Fprintf(w, "%d listed, %d unread\n", len(list), unread)
}

func (r *repl) printHistory(args []string) {
	limit := 20
	if len(args) > 0 {
		if _, err := fmt.Sscanf(args[0], "%d", &limit); err != nil || limit <= 0 {
			fmt.Fprintln(r.out, "usage: history [n]")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.ctx, 15*time.Second)
	defer cancel()
	resp, err := gateway.NewAPIClient(r.cfg.APIBaseURL(), r.token).List(ctx, limit, 0)
	if err != nil {
		fmt.Fprintln(r.out, "history failed:", err)
		return
	}
	for _, n := range resp.Notifications {
		fmt.Fprintf(r.out, "%s %s  %s  %-24s %s\n", unreadMark(n.IsRead), n.ID, n.CreatedAt.Local().Format("Jan 02 15:04"), n.Type, n.Title)
	}
	fmt.Fprintf(r.out, "%d of %d, %d unread\n", len(resp.Notifications), resp.Total, resp.UnreadCount)
}

func unreadMark(read bool) string {
	if read {
		return " "
	}
	return "*"
}

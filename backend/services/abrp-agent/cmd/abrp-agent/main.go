package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"abrplink/backend/libs/logging"
	"abrplink/backend/services/abrp-agent/internal/app"
	"abrplink/backend/services/abrp-agent/internal/auth"
	"abrplink/backend/services/abrp-agent/internal/clients"
	"abrplink/backend/services/abrp-agent/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to read .env: %v", err)
	}

	cmd := "run"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "run":
		runAgent()
		return
	case "ctl":
		err = ctlCommand(args)
	case "hash-password":
		err = hashPasswordCommand(args)
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		log.Fatalf("abrp-agent %s: %v", cmd, err)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: abrp-agent [command]

commands:
  run                         start the agent (default)
  ctl [flags] <op> [arg]      talk to a running agent: info, onetime, send on|off,
                              status, reset-config, set-token <token>, event <name>
  hash-password [password]    print the bcrypt hash for control.passwordHash`)
}

func runAgent() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger("abrp-agent")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("application stopped with error", zap.Error(err))
	}
}

func ctlCommand(args []string) error {
	fs := flag.NewFlagSet("ctl", flag.ExitOnError)
	baseURL := fs.String("url", envOr("ABRP_CONTROL_URL", "http://localhost:8090"), "control API base URL")
	password := fs.String("password", os.Getenv("ABRP_CONTROL_PASSWORD"), "operator password")
	timeout := fs.Duration("timeout", 10*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("missing operation")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := clients.NewControlClient(*baseURL, clients.NewDefaultHTTPClient(*timeout))
	if err := client.Login(ctx, *password); err != nil {
		return err
	}

	op, rest := fs.Arg(0), fs.Args()[1:]
	var (
		status int
		body   []byte
		err    error
	)
	switch op {
	case "info":
		status, body, err = client.Info(ctx)
	case "onetime":
		status, body, err = client.Onetime(ctx)
	case "status":
		status, body, err = client.Status(ctx)
	case "reset-config":
		status, body, err = client.ResetConfig(ctx)
	case "send":
		if len(rest) != 1 {
			return errors.New("usage: send on|off")
		}
		var enabled bool
		switch strings.ToLower(rest[0]) {
		case "on", "true", "1":
			enabled = true
		case "off", "false", "0":
		default:
			return fmt.Errorf("invalid send argument %q", rest[0])
		}
		status, body, err = client.Send(ctx, enabled)
	case "set-token":
		if len(rest) != 1 {
			return errors.New("usage: set-token <token>")
		}
		status, body, err = client.SetToken(ctx, rest[0])
	case "event":
		if len(rest) != 1 {
			return errors.New("usage: event vehicle.on|vehicle.off")
		}
		status, body, err = client.Event(ctx, rest[0])
	default:
		return fmt.Errorf("unknown operation %q", op)
	}
	if err != nil {
		return err
	}

	if len(body) > 0 {
		fmt.Println(strings.TrimSpace(string(body)))
	}
	if status >= 300 {
		return fmt.Errorf("%s failed with status %d", op, status)
	}
	return nil
}

func hashPasswordCommand(args []string) error {
	var password string
	if len(args) > 0 {
		password = args[0]
	} else {
		fmt.Fprint(os.Stderr, "password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return err
		}
		password = strings.TrimRight(line, "\r\n")
	}

	hash, err := auth.NewBcryptHasher(0).Hash(password)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

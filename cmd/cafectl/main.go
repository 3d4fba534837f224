package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/appetiteclub/apt"

	"github.com/appetiteclub/cafesync/cmd/cafectl/internal/commands"
)

const (
	appName    = "cafectl"
	appVersion = "0.1.0"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args, flags := splitArgs(os.Args[2:])

	config, err := apt.LoadConfig("ORDERSYNC", flags)
	if err != nil {
		log.Fatalf("Cannot load config: %v", err)
	}

	logLevel, _ := config.GetString("log.level")
	if logLevel == "" {
		logLevel = "info"
	}
	logger := apt.NewLogger(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := os.Stdout

	switch command {
	case "login":
		err = commands.Login(ctx, config, logger, out, args)

	case "logout":
		err = commands.Logout(ctx, config, logger, out)

	case "orders":
		err = commands.Orders(ctx, config, logger, out)

	case "session":
		err = commands.Session(ctx, config, logger, out)

	case "emit":
		err = commands.Emit(ctx, config, logger, out, args)

	case "version":
		fmt.Printf("%s version %s\n", appName, appVersion)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("%s %s failed: %v", appName, command, err)
	}
}

// splitArgs separates positional arguments from config flags.
func splitArgs(in []string) (args, flags []string) {
	for _, a := range in {
		if strings.HasPrefix(a, "-") {
			flags = append(flags, a)
			continue
		}
		args = append(args, a)
	}
	return args, flags
}

func printUsage() {
	fmt.Printf(`%s - order sync companion commands

Usage:
  %s <command> [args] [options]

Commands:
  login <role> key=value...   Sign in as admin, staff or customer
  logout                      End the stored session
  orders                      Fetch one order snapshot and print it
  session                     Run one session check
  emit <event> <json>         Publish a push event on NATS
  version                     Print version information
  help                        Show this help message

Environment Variables:
  ORDERSYNC_API_URL                 Café API base URL (default: http://localhost:3000)
  ORDERSYNC_SESSION_ROLE            Role used for order listing (default: staff)
  ORDERSYNC_CREDENTIALS_BACKEND     memory, redis or mongo (default: memory)
  ORDERSYNC_CREDENTIALS_REDIS_URL   Redis URL for the redis backend
  ORDERSYNC_NATS_URL                NATS URL for emit (default: nats://localhost:4222)
  ORDERSYNC_LOG_LEVEL               Log level: debug, info, warn, error (default: info)

The memory backend forgets the session when the command exits; use redis or
mongo to keep a login across commands.

Examples:
  ORDERSYNC_CREDENTIALS_BACKEND=redis %s login staff email=ana@example.com password=secret
  ORDERSYNC_CREDENTIALS_BACKEND=redis %s orders
  %s emit order-updated '{"id":"42","status":"ready"}'

`, appName, appName, appName, appName, appName)
}

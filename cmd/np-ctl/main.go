package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"NetPulse/internal/api"
	"NetPulse/internal/config"
	"NetPulse/internal/session"

	"go.uber.org/zap"
)

const usage = `Usage: np-ctl [-config path] <command> [flags]

Commands:
  login      -user NAME -pass SECRET   Sign in and persist the token pair
  register   -user NAME -pass SECRET   Create a backend account
  logout                               Drop the session locally and remotely
  devices                              List interfaces visible to the probe
  clients                              List monitored hosts
  thresholds                           List backend alerting rules
  alerts                               List stored alert history
  history    [-iface NAME] [-limit N]  Query durable traffic history
`

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the YAML configuration file.")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	store := session.NewStore(cfg.Session.TokenFile, logger)
	if err := store.Load(); err != nil {
		logger.Fatal("failed to load session", zap.Error(err))
	}

	client, err := api.NewClient(cfg.Backend, store, logger, nil, func() {
		fmt.Fprintln(os.Stderr, "session expired, run: np-ctl login")
	})
	if err != nil {
		logger.Fatal("failed to create backend client", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, client, args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "np-ctl %s: %v\n", args[0], err)
		os.Exit(1)
	}
}

func run(ctx context.Context, client *api.Client, command string, args []string) error {
	switch command {
	case "login":
		user, pass, err := credentials(command, args)
		if err != nil {
			return err
		}
		if err := client.Login(ctx, user, pass); err != nil {
			return err
		}
		fmt.Println("logged in")
		return nil

	case "register":
		user, pass, err := credentials(command, args)
		if err != nil {
			return err
		}
		if err := client.Register(ctx, user, pass); err != nil {
			return err
		}
		fmt.Println("account created, now run: np-ctl login")
		return nil

	case "logout":
		if err := client.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("logged out")
		return nil

	case "devices":
		devices, err := client.Devices(ctx)
		if err != nil {
			return err
		}
		return printJSON(devices)

	case "clients":
		clients, err := client.Clients(ctx)
		if err != nil {
			return err
		}
		return printJSON(clients)

	case "thresholds":
		rules, err := client.Thresholds(ctx)
		if err != nil {
			return err
		}
		return printJSON(rules)

	case "alerts":
		alerts, err := client.Alerts(ctx)
		if err != nil {
			return err
		}
		return printJSON(alerts)

	case "history":
		fs := flag.NewFlagSet("history", flag.ContinueOnError)
		iface := fs.String("iface", "", "Limit to one interface.")
		limit := fs.Int("limit", 100, "Maximum number of rows.")
		if err := fs.Parse(args); err != nil {
			return err
		}
		entries, err := client.TrafficHistory(ctx, *iface, *limit)
		if err != nil {
			return err
		}
		return printJSON(entries)

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func credentials(command string, args []string) (string, string, error) {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	user := fs.String("user", "", "Username.")
	pass := fs.String("pass", "", "Password.")
	if err := fs.Parse(args); err != nil {
		return "", "", err
	}
	if *user == "" || *pass == "" {
		return "", "", fmt.Errorf("both -user and -pass are required")
	}
	return *user, *pass, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

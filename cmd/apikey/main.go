// Command apikey manages the keys that unlock the gateway's write routes
// when coordinator.requireApiKey is set.
//
// Usage:
//
//	apikey [-config path] create -name ci [-expires-in 720h]
//	apikey [-config path] revoke -key <raw-key>
//	apikey [-config path] list
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	v := apikey.NewValidator(db)
	if err := v.Migrate(ctx); err != nil {
		slog.Error("failed to migrate api key table", "error", err)
		os.Exit(1)
	}

	args := flag.Args()
	switch args[0] {
	case "create":
		err = create(ctx, v, args[1:])
	case "revoke":
		err = revoke(ctx, v, args[1:])
	case "list":
		err = list(ctx, v)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", args[0], err)
		os.Exit(1)
	}
}

func create(ctx context.Context, v *apikey.Validator, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	name := fs.String("name", "", "label for the key")
	expiresIn := fs.Duration("expires-in", 0, "lifetime of the key, e.g. 720h (0 never expires)")
	_ = fs.Parse(args)
	if *name == "" {
		return fmt.Errorf("-name is required")
	}

	var expiresAt *time.Time
	if *expiresIn > 0 {
		t := time.Now().Add(*expiresIn)
		expiresAt = &t
	}
	key, err := v.CreateKey(ctx, *name, expiresAt)
	if err != nil {
		return err
	}
	fmt.Println("Store this key now, it cannot be shown again.")
	fmt.Printf("  Key:     %s\n", key)
	fmt.Printf("  Name:    %s\n", *name)
	fmt.Printf("  Expires: %s\n", formatExpiry(expiresAt))
	return nil
}

func revoke(ctx context.Context, v *apikey.Validator, args []string) error {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	key := fs.String("key", "", "raw key to revoke")
	_ = fs.Parse(args)
	if *key == "" {
		return fmt.Errorf("-key is required")
	}
	if err := v.RevokeKey(ctx, *key); err != nil {
		return err
	}
	fmt.Println("key revoked")
	return nil
}

func list(ctx context.Context, v *apikey.Validator) error {
	keys, err := v.ListKeys(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCREATED\tEXPIRES")
	for _, k := range keys {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", k.ID, k.Name, k.CreatedAt.Format(time.RFC3339), formatExpiry(k.ExpiresAt))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d active key(s)\n", len(keys))
	return nil
}

func formatExpiry(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: apikey [-config path] <create|revoke|list> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, `  apikey create -name "ci" -expires-in 720h`)
	fmt.Fprintln(os.Stderr, `  apikey revoke -key 3f9a...`)
	fmt.Fprintln(os.Stderr, `  apikey list`)
}

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"billtrack/app"
	"billtrack/config"
)

const usage = `usage:
  billtrack serve
  billtrack regenerate -user ID [-dry-run]
  billtrack scan (-user ID | -all)`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	// Load config from .env file
	cfg := config.LoadFromEnv()

	if err := run(cfg, os.Args[1], os.Args[2:]); err != nil {
		log.Fatal().Err(err).Msg("billtrack failed")
	}
}

func run(cfg *config.Config, command string, args []string) error {
	switch command {
	case "serve":
		application := app.New(cfg)
		if err := application.Init(); err != nil {
			return err
		}
		return application.Serve()

	case "regenerate":
		fs := flag.NewFlagSet("regenerate", flag.ExitOnError)
		user := fs.String("user", "", "user id to regenerate")
		dryRun := fs.Bool("dry-run", false, "print the computed bills and rejections without writing")
		fs.Parse(args)
		if *user == "" {
			return fmt.Errorf("regenerate: -user is required")
		}

		application := app.New(cfg)
		if err := application.Init(); err != nil {
			return err
		}
		defer application.Close()

		report, err := application.Service().Regenerate(application.Context(), *user, *dryRun)
		if err != nil {
			return err
		}
		return printJSON(report)

	case "scan":
		fs := flag.NewFlagSet("scan", flag.ExitOnError)
		user := fs.String("user", "", "user id to scan")
		all := fs.Bool("all", false, "scan every user with an active bill")
		fs.Parse(args)
		if (*user == "") == !*all {
			return fmt.Errorf("scan: exactly one of -user or -all is required")
		}

		application := app.New(cfg)
		if err := application.Init(); err != nil {
			return err
		}
		defer application.Close()

		ctx := application.Context()
		if *all {
			report, err := application.Service().ScanAll(ctx)
			if err != nil {
				return err
			}
			return printJSON(report)
		}
		report, err := application.Service().Scan(ctx, *user)
		if err != nil {
			return err
		}
		return printJSON(report)

	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

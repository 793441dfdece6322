package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"solgate/internal/config"
	"solgate/internal/gateway"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your solgate installation",
		Long: `Verifies that solgate's configuration, provider credentials, database, and
chain RPC endpoint are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("Solgate Doctor v%s\n", gateway.Version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'solgate init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return nil
			}
			printPass("Config validation", "valid")
			passed++

			dbPath := config.ExpandPath(cfg.Database.Path)
			if err := checkDatabase(dbPath); err != nil {
				printFail("Database", err.Error())
				failed++
			} else {
				printPass("Database", dbPath)
				passed++
			}

			if cfg.Providers.OpenAI.APIKey == "" {
				printWarn("OpenAI key", "not configured; classification and summaries will fail")
				warned++
			} else {
				printPass("OpenAI key", "configured")
				passed++
			}
			if cfg.Providers.Expand.APIKey == "" {
				printWarn("Expand key", "not configured; balance and transaction lookups will fail")
				warned++
			} else {
				printPass("Expand key", "configured")
				passed++
			}
			if cfg.Providers.Tracker.APIKey == "" {
				printWarn("Tracker key", "not configured; PnL lookups will fail")
				warned++
			} else {
				printPass("Tracker key", "configured")
				passed++
			}

			if err := checkRPC(cfg.Chain.RPCURL); err != nil {
				printWarn("Chain RPC", fmt.Sprintf("%s unreachable: %v", cfg.Chain.RPCURL, err))
				warned++
			} else {
				printPass("Chain RPC", cfg.Chain.RPCURL)
				passed++
			}

			if err := checkPort(cfg.Server.Port); err != nil {
				printWarn("Server port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
				warned++
			} else {
				printPass("Server port", fmt.Sprintf(":%d available", cfg.Server.Port))
				passed++
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running solgate.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nSolgate should start but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! Solgate is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func checkRPC(rpcURL string) error {
	u, err := url.Parse(rpcURL)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("no host in %q", rpcURL)
	}
	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(u.Hostname(), port), 5*time.Second)
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}

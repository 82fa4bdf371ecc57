// Command prune deletes aged lockout history on demand. The server runs the
// same pruner on a schedule; this command exists for one-off runs with
// explicit retention overrides.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	lockoutcfg "lockgate/internal/lockout/config"
	"lockgate/internal/lockout/store"
	"lockgate/internal/lockout/workers/prune"
	"lockgate/internal/platform/config"
	"lockgate/internal/platform/database"
	"lockgate/internal/platform/logger"
)

func main() {
	var (
		daysLogs  = flag.Int("days-logs", 0, "retention in days for attempt logs (default from config)")
		daysLocks = flag.Int("days-locks", 0, "retention in days for lock records (default from config)")
		onlyLogs  = flag.Bool("only-logs", false, "prune attempt logs only")
		onlyLocks = flag.Bool("only-locks", false, "prune lock records only")
		force     = flag.Bool("force", false, "skip the confirmation prompt")
	)
	flag.Parse()

	log := logger.New()
	slog.SetDefault(log)

	if *onlyLogs && *onlyLocks {
		fmt.Fprintln(os.Stderr, "cannot combine -only-logs with -only-locks")
		os.Exit(1)
	}

	srvCfg := config.FromEnv()
	lockCfg := lockoutcfg.FromEnv()

	logRetention := lockCfg.Prune.AttemptLogRetention
	if *daysLogs > 0 {
		logRetention = time.Duration(*daysLogs) * 24 * time.Hour
	}
	lockRetention := lockCfg.Prune.LockRecordRetention
	if *daysLocks > 0 {
		lockRetention = time.Duration(*daysLocks) * 24 * time.Hour
	}

	if !*force && !confirm(logRetention, lockRetention, *onlyLogs, *onlyLocks) {
		fmt.Fprintln(os.Stderr, "aborted")
		os.Exit(1)
	}

	if srvCfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}
	dbCfg := database.DefaultConfig()
	dbCfg.URL = srvCfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close() //nolint:errcheck // process exits next

	// The on-demand command always runs, even when scheduled pruning is off.
	cfg := lockCfg.Prune
	cfg.Enabled = true

	pruner := prune.New(store.NewPostgres(pool.DB()), cfg, prune.WithLogger(log))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := pruner.Run(ctx, prune.Selection{
		OnlyAttemptLogs: *onlyLogs,
		OnlyLockRecords: *onlyLocks,
	}, logRetention, lockRetention)
	if err != nil {
		log.Error("prune failed", "error", err)
		os.Exit(1)
	}

	log.Info("prune finished",
		"attempt_logs_deleted", result.AttemptLogsDeleted,
		"lock_records_deleted", result.LockRecordsDeleted,
		"duration_ms", result.Duration.Milliseconds(),
	)
}

func confirm(logRetention, lockRetention time.Duration, onlyLogs, onlyLocks bool) bool {
	if !onlyLocks {
		fmt.Printf("attempt logs older than %s will be deleted\n", logRetention)
	}
	if !onlyLogs {
		fmt.Printf("lock records unlocked or expired more than %s ago will be deleted\n", lockRetention)
	}
	fmt.Print("continue? [y/N]: ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// Command cancelwatchctl is the operator CLI: import schedule/station/
// connection files into the Schedule Store, inspect store statistics,
// and probe a running daemon's health endpoints. Structured the way
// tidbyt-gtfs/cmd's cobra root composes subcommands under persistent
// flags, generalized from GTFS-feed-loading subcommands to this
// service's import/inspect/probe trio.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nrod/cancelwatch/internal/adapters"
	"github.com/nrod/cancelwatch/internal/store"
	"github.com/nrod/cancelwatch/internal/version"
)

var storePath string

var rootCmd = &cobra.Command{
	Use:          "cancelwatchctl",
	Short:        "Operator CLI for the cancellation enrichment service",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "data/cancelwatch.db", "path to the schedule store file")
	rootCmd.AddCommand(importScheduleCmd, importStationCmd, importConnectionCmd, statsCmd, healthCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func fileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// runImport wraps the common BeginImport/FinishImport bracket shared by
// all three file types, per §4.A's "imports are file-at-a-time; content
// hashing is used for idempotency."
func runImport(fileType, path string, apply func(st *store.Store, data []byte) (recordCount, imported int, errs []string)) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	st, err := store.Open(storePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	hash := fileHash(data)
	decision, rec, err := st.BeginImport(fileType, hash)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	if decision == store.ImportDuplicate {
		fmt.Printf("%s: already imported (hash %s), skipping\n", path, hash[:12])
		return nil
	}

	recordCount, imported, errs := apply(st, data)
	success := imported > 0 || recordCount == 0

	if err := st.FinishImport(rec.ID, recordCount, imported, success, errs); err != nil {
		return fmt.Errorf("finish import: %w", err)
	}

	fmt.Printf("%s: %d records parsed, %d imported, %d errors (%s)\n", path, recordCount, imported, len(errs), decision)
	for _, e := range errs {
		fmt.Fprintln(os.Stderr, "  "+e)
	}
	return nil
}

var importScheduleCmd = &cobra.Command{
	Use:   "import-schedule <file>",
	Short: "Import a CIF-like schedule file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport("schedule", args[0], func(st *store.Store, data []byte) (int, int, []string) {
			records, report := adapters.ParseSchedule(data)
			imported := 0
			errs := append([]string{}, report.ParseErrors...)
			for _, rec := range records {
				if _, err := st.PutSchedule(rec.Schedule, rec.Stops); err != nil {
					errs = append(errs, fmt.Sprintf("train_uid %s: %v", rec.Schedule.TrainUID, err))
					continue
				}
				imported++
			}
			return report.RecordCount, imported, errs
		})
	},
}

var importStationCmd = &cobra.Command{
	Use:   "import-stations <file>",
	Short: "Import an MSN-like station reference file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport("station", args[0], func(st *store.Store, data []byte) (int, int, []string) {
			records, report := adapters.ParseStationReference(data)
			imported := 0
			errs := append([]string{}, report.ParseErrors...)
			for _, rec := range records {
				if _, err := st.PutStation(rec.Station); err != nil {
					errs = append(errs, fmt.Sprintf("tiploc %s: %v", rec.Station.Tiploc, err))
					continue
				}
				imported++
			}
			return report.RecordCount, imported, errs
		})
	},
}

var importConnectionCmd = &cobra.Command{
	Use:   "import-connections <file>",
	Short: "Import an ALF-like connection file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport("connection", args[0], func(st *store.Store, data []byte) (int, int, []string) {
			records, report := adapters.ParseConnections(data)
			imported := 0
			errs := append([]string{}, report.ParseErrors...)
			for _, rec := range records {
				mode := store.ConnectionInterchange
				if rec.Mode == adapters.ConnectionWalk {
					mode = store.ConnectionWalk
				}
				conn := store.Connection{
					FromTiploc:      rec.FromTiploc,
					ToTiploc:        rec.ToTiploc,
					Mode:            mode,
					DurationMinutes: rec.DurationMinutes,
					ValidFrom:       rec.ValidFrom,
					ValidTo:         rec.ValidTo,
				}
				if err := st.PutConnection(conn); err != nil {
					errs = append(errs, fmt.Sprintf("%s->%s: %v", rec.FromTiploc, rec.ToTiploc, err))
					continue
				}
				imported++
			}
			return report.RecordCount, imported, errs
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print schedule store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(storePath)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.Statistics()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

var healthTarget string

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe a running daemon's /health/deep endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(healthTarget + "/health/deep")
		if err != nil {
			return fmt.Errorf("probe %s: %w", healthTarget, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		fmt.Println(resp.Status)
		fmt.Println(string(body))
		if resp.StatusCode >= 300 {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().StringVar(&healthTarget, "addr", "http://localhost:8080", "base URL of the running daemon")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version.String())
		return nil
	},
}

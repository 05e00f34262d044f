package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"retain/internal/app"
	"retain/internal/archive"
	"retain/internal/config"
	"retain/internal/evidence"

	"filippo.io/age"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "Enqueue", "Execute").
func newApp(cmd *cobra.Command, operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.New(cmd.Context(), cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

func actorFlag(cmd *cobra.Command) string {
	actor, _ := cmd.Flags().GetString("actor")
	if actor == "" {
		actor = os.Getenv("USER")
	}
	if actor == "" {
		actor = "unknown"
	}
	return actor
}

var rootCmd = &cobra.Command{
	Use:   "retain",
	Short: "Archive lifecycle manager",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		cutoff, err := cfg.CutoffTime()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Database:  %s\n", cfg.Database.Type)
		fmt.Printf("Storage:   %s\n", cfg.Storage.Type)
		fmt.Printf("Cutoff:    %s\n", cutoff.Format(time.RFC3339))
		return nil
	},
}

// enqueue command
var enqueueCmd = &cobra.Command{
	Use:   "enqueue ASSET",
	Short: "Queue an asset for archival",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		reasonOther, _ := cmd.Flags().GetString("reason-other")
		description, _ := cmd.Flags().GetString("description")
		note, _ := cmd.Flags().GetString("note")
		private, _ := cmd.Flags().GetBool("private")

		a, err := newApp(cmd, "Enqueue")
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Service.Enqueue(cmd.Context(), actorFlag(cmd), args[0], archive.EnqueueParams{
			Reason:            archive.ReasonCode(reason),
			ReasonOther:       reasonOther,
			PublicDescription: description,
			InternalNote:      note,
			Private:           private,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Queued %s (%s, %d bytes)\n", rec.PublicID, rec.FileName, rec.SizeBytes)
		return nil
	},
}

// execute command
var executeCmd = &cobra.Command{
	Use:   "execute PUBLIC_ID",
	Short: "Execute archival of a queued record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		visibility, _ := cmd.Flags().GetString("visibility")

		a, err := newApp(cmd, "Execute")
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Service.Execute(cmd.Context(), actorFlag(cmd), args[0], archive.Visibility(visibility))
		if err != nil {
			return err
		}

		fmt.Printf("Archived %s as %s\n", rec.PublicID, rec.Status)
		if rec.FileBacked && !rec.HasChecksum() {
			fmt.Println("Checksum deferred to the background worker.")
		}
		return nil
	},
}

// toggle-visibility command
var toggleCmd = &cobra.Command{
	Use:   "toggle-visibility PUBLIC_ID",
	Short: "Flip an archived record between public and admin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "ToggleVisibility")
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Service.ToggleVisibility(cmd.Context(), actorFlag(cmd), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s is now %s\n", rec.PublicID, rec.Status)
		return nil
	},
}

// unarchive command
var unarchiveCmd = &cobra.Command{
	Use:   "unarchive PUBLIC_ID",
	Short: "Withdraw an archived record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Unarchive")
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Service.Unarchive(cmd.Context(), actorFlag(cmd), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Withdrew %s (%s)\n", rec.PublicID, rec.Status)
		return nil
	},
}

// delete-file command
var deleteFileCmd = &cobra.Command{
	Use:   "delete-file PUBLIC_ID",
	Short: "Delete the underlying file of an archived record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "DeleteFile")
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Service.DeleteFile(cmd.Context(), actorFlag(cmd), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Deleted file for %s; record retained as %s\n", rec.PublicID, rec.Status)
		return nil
	},
}

// remove command
var removeCmd = &cobra.Command{
	Use:   "remove PUBLIC_ID",
	Short: "Remove a queued record before archival",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "RemoveFromQueue")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Service.RemoveFromQueue(cmd.Context(), actorFlag(cmd), args[0]); err != nil {
			return err
		}

		fmt.Printf("Removed %s from the queue\n", args[0])
		return nil
	},
}

// show command
var showCmd = &cobra.Command{
	Use:   "show PUBLIC_ID",
	Short: "Show a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Get")
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Service.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Public ID:   %s\n", rec.PublicID)
		fmt.Printf("Status:      %s\n", rec.Status)
		fmt.Printf("File:        %s (%s, %d bytes)\n", rec.FileName, rec.MIMEType, rec.SizeBytes)
		fmt.Printf("Locator:     %s\n", rec.Locator)
		fmt.Printf("Reason:      %s\n", rec.Reason)
		if rec.ReasonOther != "" {
			fmt.Printf("Detail:      %s\n", rec.ReasonOther)
		}
		fmt.Printf("Description: %s\n", rec.PublicDescription)
		if rec.HasChecksum() {
			fmt.Printf("SHA-256:     %s\n", rec.ChecksumSHA256)
		} else {
			fmt.Printf("SHA-256:     (pending)\n")
		}
		if rec.ClassifiedAt != nil {
			fmt.Printf("Classified:  %s\n", rec.ClassifiedAt.Format(time.RFC3339))
		}
		if rec.VoidedAt != nil {
			fmt.Printf("Voided:      %s\n", rec.VoidedAt.Format(time.RFC3339))
		}
		if rec.DeletedAt != nil {
			fmt.Printf("Deleted:     %s by %s\n", rec.DeletedAt.Format(time.RFC3339), rec.DeletedBy)
		}
		if flags := flagNames(rec.Flags); len(flags) > 0 {
			fmt.Printf("Flags:       %s\n", strings.Join(flags, ", "))
		}
		return nil
	},
}

func flagNames(f archive.Flags) []string {
	var names []string
	if f.UsageDetected {
		names = append(names, "usage-detected")
	}
	if f.FileMissing {
		names = append(names, "file-missing")
	}
	if f.IntegrityViolation {
		names = append(names, "integrity-violation")
	}
	if f.LateClassification {
		names = append(names, "late-classification")
	}
	if f.ContentModified {
		names = append(names, "content-modified")
	}
	if f.PriorVoid {
		names = append(names, "prior-void")
	}
	return names
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List records",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFilter, _ := cmd.Flags().GetString("status")

		a, err := newApp(cmd, "List")
		if err != nil {
			return err
		}
		defer a.Close()

		statuses := archive.ActiveStatuses()
		if statusFilter != "" {
			st := archive.Status(statusFilter)
			if !st.Valid() {
				return fmt.Errorf("unknown status %q", statusFilter)
			}
			statuses = []archive.Status{st}
		}

		records, err := a.Service.List(cmd.Context(), statuses...)
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("No records found.")
			return nil
		}

		for _, rec := range records {
			flagged := " "
			if rec.Flags.Any() {
				flagged = "!"
			}
			fmt.Printf("%s %-16s %-18s %s\n", flagged, rec.PublicID, rec.Status, rec.FileName)
		}
		return nil
	},
}

// reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Verify records against their files and escalate discrepancies",
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		listen, _ := cmd.Flags().GetString("listen")

		a, err := newApp(cmd, "Reconcile")
		if err != nil {
			return err
		}
		defer a.Close()

		if interval > 0 {
			if listen == "" {
				listen = a.Cfg.Reconcile.MetricsListen
			}
			if listen != "" {
				go func() {
					mux := http.NewServeMux()
					mux.Handle("/metrics", promhttp.Handler())
					if err := http.ListenAndServe(listen, mux); err != nil {
						a.Logger.Error("metrics listener failed", "error", err)
					}
				}()
			}
			fmt.Printf("Reconciling every %s\n", interval)
			a.Reconciler.Start(cmd.Context(), interval)
			return nil
		}

		stats, err := a.Reconciler.Run(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Scanned %d record(s), updated %d\n", stats.Scanned, stats.Updated)
		if stats.QueueDrops > 0 {
			fmt.Printf("  dropped from queue:    %d\n", stats.QueueDrops)
		}
		if stats.MissingFlagged > 0 {
			fmt.Printf("  missing files flagged: %d\n", stats.MissingFlagged)
		}
		if stats.IntegrityFailed > 0 {
			fmt.Printf("  integrity failures:    %d\n", stats.IntegrityFailed)
		}
		if stats.VoidEscalations > 0 {
			fmt.Printf("  exemptions voided:     %d\n", stats.VoidEscalations)
		}
		if stats.QuietWithdrawals > 0 {
			fmt.Printf("  archives withdrawn:    %d\n", stats.QuietWithdrawals)
		}
		if stats.Conflicts > 0 {
			fmt.Printf("  skipped (conflicts):   %d\n", stats.Conflicts)
		}
		return nil
	},
}

// worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background checksum worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		once, _ := cmd.Flags().GetBool("once")

		a, err := newApp(cmd, "ChecksumWorker")
		if err != nil {
			return err
		}
		defer a.Close()

		hostname, _ := os.Hostname()
		w := a.NewWorker(fmt.Sprintf("%s-%d", hostname, os.Getpid()))

		if once {
			n, err := w.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Computed %d checksum(s)\n", n)
			return nil
		}

		return w.Run(cmd.Context())
	},
}

// evidence command
var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Produce compliance evidence",
}

var evidenceExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export an evidence bundle of all active records",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		recipientPath, _ := cmd.Flags().GetString("recipients")
		passphrase, _ := cmd.Flags().GetBool("passphrase")

		a, err := newApp(cmd, "EvidenceExport")
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.Service.List(cmd.Context(), archive.ActiveStatuses()...)
		if err != nil {
			return err
		}
		deleted, err := a.Service.List(cmd.Context(), archive.StatusArchivedDeleted)
		if err != nil {
			return err
		}
		records = append(records, deleted...)

		bundle := evidence.NewBundle(actorFlag(cmd), time.Now().UTC(), a.Compliance.Cutoff(), records)

		var recipients []age.Recipient
		switch {
		case passphrase:
			pass, err := readPassphrase()
			if err != nil {
				return err
			}
			r, err := age.NewScryptRecipient(pass)
			if err != nil {
				return fmt.Errorf("building scrypt recipient: %w", err)
			}
			recipients = []age.Recipient{r}
		case recipientPath != "":
			recipients, err = evidence.LoadRecipients(recipientPath)
			if err != nil {
				return err
			}
		case a.Cfg.Evidence.RecipientPath != "":
			recipients, err = evidence.LoadRecipients(a.Cfg.Evidence.RecipientPath)
			if err != nil {
				return err
			}
		}

		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("creating %s: %w", out, err)
		}
		defer f.Close()

		if len(recipients) > 0 {
			err = bundle.WriteEncrypted(f, recipients...)
		} else {
			err = bundle.WriteJSON(f)
		}
		if err != nil {
			return fmt.Errorf("writing bundle: %w", err)
		}

		fmt.Printf("Wrote %d record(s) to %s\n", len(bundle.Records), out)
		return nil
	},
}

func readPassphrase() (string, error) {
	fmt.Fprint(os.Stderr, "Passphrase: ")
	pass, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}

	fmt.Fprint(os.Stderr, "Confirm passphrase: ")
	confirm, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}

	if string(pass) != string(confirm) {
		return "", fmt.Errorf("passphrases do not match")
	}
	return string(pass), nil
}

func init() {
	rootCmd.PersistentFlags().String("actor", "", "Acting operator recorded on mutations (default: $USER)")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.AddCommand(enqueueCmd)
	enqueueCmd.Flags().String("reason", "reference", "Retention reason: reference, research, recordkeeping, other")
	enqueueCmd.Flags().String("reason-other", "", "Free-text reason, required when --reason=other")
	enqueueCmd.Flags().String("description", "", "Public description (required)")
	enqueueCmd.Flags().String("note", "", "Internal note")
	enqueueCmd.Flags().Bool("private", false, "Hide from external listings regardless of visibility")

	rootCmd.AddCommand(executeCmd)
	executeCmd.Flags().String("visibility", "public", "Target visibility: public or admin")

	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(unarchiveCmd)
	rootCmd.AddCommand(deleteFileCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(showCmd)

	rootCmd.AddCommand(listCmd)
	listCmd.Flags().String("status", "", "Only records in this status")

	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().Duration("interval", 0, "Run continuously at this interval (0 runs once)")
	reconcileCmd.Flags().String("listen", "", "Serve Prometheus metrics on this address while running")

	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().Bool("once", false, "Drain the queue and exit")

	evidenceCmd.AddCommand(evidenceExportCmd)
	evidenceExportCmd.Flags().String("out", "evidence.json", "Output path")
	evidenceExportCmd.Flags().String("recipients", "", "Path to an age recipients file")
	evidenceExportCmd.Flags().Bool("passphrase", false, "Encrypt with an interactive passphrase")
	rootCmd.AddCommand(evidenceCmd)
}

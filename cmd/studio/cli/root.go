// Package cli implements the lako-studio command line: offline totals and
// payment references, invoice generation against the eFaktura service, and
// inspection of the notification queue.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lako-services/lako-web/internal/app"
	"github.com/lako-services/lako-web/internal/efaktura"
	"github.com/lako-services/lako-web/internal/history"
)

const defaultProfile = "cli"

// runtime is the state shared by subcommands once flags are parsed.
type runtime struct {
	envFile    string
	profile    string
	historyDir string
	verbose    bool

	cfg     *app.Config
	logger  *slog.Logger
	history *history.History
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	rt := &runtime{}
	root := &cobra.Command{
		Use:   "lako-studio",
		Short: "Prepare and generate Serbian eFaktura invoices",
		Long: `lako-studio computes invoice totals and payment references offline and
submits complete invoices to the eFaktura generation service, saving the
returned PDF and UBL XML.

Seller profile, buyers and items are remembered per profile in a local
history directory and reused to autofill new drafts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&rt.envFile, "env", ".env", "dotenv file to load")
	flags.StringVar(&rt.profile, "profile", defaultProfile, "history profile")
	flags.StringVar(&rt.historyDir, "history-dir", "", "history directory (default HISTORY_DIR)")
	flags.BoolVarP(&rt.verbose, "verbose", "v", false, "log progress to stderr")

	root.AddCommand(
		newTotalsCommand(rt),
		newReferenceCommand(rt),
		newDraftCommand(rt),
		newGenerateCommand(rt),
		newSellerCommand(rt),
		newJobsCommand(rt),
	)
	return root
}

func (rt *runtime) init(cmd *cobra.Command) error {
	cfg, err := app.LoadConfigFrom(rt.envFile)
	if err != nil {
		return err
	}
	rt.cfg = cfg

	level := slog.LevelWarn
	if rt.verbose {
		level = slog.LevelDebug
	}
	rt.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	dir := rt.historyDir
	if dir == "" {
		dir = cfg.HistoryDir
	}
	store, err := history.NewFileStore(dir)
	if err != nil {
		return err
	}
	rt.history = history.New(store, rt.profile, rt.logger)
	return nil
}

// readInvoice decodes an invoice from path, or stdin for "-".
func readInvoice(cmd *cobra.Command, path string) (efaktura.InvoiceData, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return efaktura.InvoiceData{}, err
		}
		defer f.Close()
		r = f
	}
	var inv efaktura.InvoiceData
	if err := json.NewDecoder(r).Decode(&inv); err != nil {
		return efaktura.InvoiceData{}, fmt.Errorf("decode invoice %s: %w", path, err)
	}
	return inv, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printCompleteness(w io.Writer, c efaktura.Completeness) {
	fmt.Fprintf(w, "Completeness: %d/%d\n", c.Valid, c.Total)
	for _, check := range c.Checks {
		mark := "x"
		if check.OK {
			mark = "ok"
		}
		fmt.Fprintf(w, "  [%s] %s\n", mark, check.Name)
	}
}

func missingChecks(c efaktura.Completeness) string {
	var missing []string
	for _, check := range c.Checks {
		if !check.OK {
			missing = append(missing, check.Name)
		}
	}
	return strings.Join(missing, ", ")
}

package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lako-services/lako-web/internal/efaktura"
	"github.com/lako-services/lako-web/internal/generation"
)

func newTotalsCommand(rt *runtime) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "totals <invoice.json|->",
		Short: "Compute line, VAT and grand totals for an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := readInvoice(cmd, args[0])
			if err != nil {
				return err
			}
			inv = efaktura.Normalize(inv)
			totals := efaktura.ComputeTotals(inv)
			completeness := efaktura.CheckCompleteness(inv)
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, map[string]any{
					"totals":           totals,
					"paymentReference": inv.PaymentReference,
					"completeness":     completeness,
				})
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tDescription\tQty\tUnit\tPrice\tVAT\tTotal")
			for i, line := range totals.LineItems {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", i+1,
					line.Description,
					line.Quantity.String(),
					line.Unit,
					efaktura.FormatAmount(line.UnitPrice.Decimal),
					efaktura.FormatAmount(line.VATAmount),
					efaktura.FormatAmount(line.TotalAmount))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nSubtotal:    %s %s\n", efaktura.FormatAmount(totals.Subtotal), inv.Currency)
			for _, entry := range totals.VATSummary {
				fmt.Fprintf(out, "PDV %d%%:     %s (osnovica %s)\n", entry.Rate, efaktura.FormatAmount(entry.Amount), efaktura.FormatAmount(entry.Base))
			}
			fmt.Fprintf(out, "Total VAT:   %s %s\n", efaktura.FormatAmount(totals.TotalVAT), inv.Currency)
			fmt.Fprintf(out, "Grand total: %s %s\n", efaktura.FormatAmount(totals.GrandTotal), inv.Currency)
			if inv.PaymentReference != "" {
				fmt.Fprintf(out, "Poziv na broj: %s\n", inv.PaymentReference)
			}
			printCompleteness(out, completeness)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newReferenceCommand(_ *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "reference <invoice-number>",
		Short: "Print the payment reference derived from an invoice number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if efaktura.DigitsOnly(args[0]) == "" {
				return fmt.Errorf("invoice number %q has no digits", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), efaktura.PaymentReference(args[0]))
			return nil
		},
	}
}

func newDraftCommand(rt *runtime) *cobra.Command {
	var (
		number   string
		buyerPIB string
	)
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Print a new invoice draft prefilled from history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			inv := efaktura.NewInvoice(time.Now())
			inv.InvoiceNumber = number
			inv.Buyer.PIB = buyerPIB
			inv, err := rt.history.Autofill(cmd.Context(), inv)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), efaktura.Normalize(inv))
		},
	}
	cmd.Flags().StringVar(&number, "number", "", "invoice number")
	cmd.Flags().StringVar(&buyerPIB, "buyer", "", "buyer PIB to look up in history")
	return cmd
}

func newGenerateCommand(rt *runtime) *cobra.Command {
	var (
		outDir   string
		interval time.Duration
		attempts int
	)
	cmd := &cobra.Command{
		Use:   "generate <invoice.json|->",
		Short: "Generate the PDF and UBL XML for a complete invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := readInvoice(cmd, args[0])
			if err != nil {
				return err
			}
			inv = efaktura.Normalize(inv)
			if err := efaktura.Validate(inv); err != nil {
				return err
			}
			if c := efaktura.CheckCompleteness(inv); !c.Complete() {
				return fmt.Errorf("invoice is incomplete: %s", missingChecks(c))
			}

			cfg := generation.Config{PollInterval: rt.cfg.EfakturaPollInterval, MaxPollAttempts: rt.cfg.EfakturaPollAttempts, PollSlack: rt.cfg.EfakturaPollSlack}
			if interval > 0 {
				cfg.PollInterval = interval
			}
			if attempts > 0 {
				cfg.MaxPollAttempts = attempts
			}
			client := generation.NewClient(generation.ClientConfig{
				BaseURL:  rt.cfg.EfakturaAPIURL,
				Timeout:  rt.cfg.EfakturaHTTPTimeout,
				RetryMax: rt.cfg.EfakturaRetryMax,
			})
			orch := generation.NewOrchestrator(client, cfg,
				generation.WithLogger(rt.logger),
				generation.WithRecorder(rt.history))

			result, err := orch.Submit(cmd.Context(), inv)
			if err != nil {
				var rl *generation.RateLimitError
				if errors.As(err, &rl) {
					return fmt.Errorf("%s (%s limit)", rl.Message, rl.Tier)
				}
				return errors.New(generation.Message(err))
			}

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, artifact := range []generation.Artifact{result.PDF, result.XML} {
				path := filepath.Join(outDir, artifact.FileName)
				if err := os.WriteFile(path, artifact.Data, 0o644); err != nil {
					return err
				}
				fmt.Fprintln(out, path)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "directory for the generated files")
	cmd.Flags().DurationVar(&interval, "poll-interval", 0, "status poll interval (default EFAKTURA_POLL_INTERVAL)")
	cmd.Flags().IntVar(&attempts, "poll-attempts", 0, "maximum status polls (default EFAKTURA_POLL_ATTEMPTS)")
	return cmd
}

func newSellerCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seller",
		Short: "Show or save the seller profile",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the saved seller profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			seller, err := rt.history.Seller(cmd.Context())
			if err != nil {
				return err
			}
			if seller == nil {
				return errors.New("no seller profile saved")
			}
			return writeJSON(cmd.OutOrStdout(), seller)
		},
	}, &cobra.Command{
		Use:   "save <invoice.json|->",
		Short: "Save the seller of an invoice as the profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := readInvoice(cmd, args[0])
			if err != nil {
				return err
			}
			saved, err := rt.history.SaveSeller(cmd.Context(), inv.Seller)
			if err != nil {
				return err
			}
			if !saved {
				return errors.New("seller has neither PIB nor name")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "seller profile saved")
			return nil
		},
	})
	return cmd
}

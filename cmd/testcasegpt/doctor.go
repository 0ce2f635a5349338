package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"testcasegpt/internal/config"
	"testcasegpt/internal/diagnostics"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "doctor",
		Short:         "Check which LLM provider resolves and whether it accepts the credential",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			_, gatewayCfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			report, err := runDoctor(cmd.Context(), diagnostics.NewProber(nil, ""), gatewayCfg, cmd.OutOrStdout(), format)
			if err != nil {
				return err
			}
			if !report.Healthy {
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().String("format", "table", `Output format: "table" or "json"`)
	return cmd
}

// runDoctor probes cfg and renders the report to w. The error covers only
// rendering failures; callers inspect report.Healthy.
func runDoctor(ctx context.Context, prober *diagnostics.Prober, cfg config.GatewayConfig, w io.Writer, format string) (diagnostics.Report, error) {
	report := prober.Run(ctx, cfg)
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return report, fmt.Errorf("encode doctor report: %w", err)
		}
	default:
		renderDoctorTable(report, w)
	}
	return report, nil
}

func renderDoctorTable(report diagnostics.Report, w io.Writer) {
	fmt.Fprintln(w, "LLM Provider Diagnostics")
	fmt.Fprintf(w, "\nProvider: %s\n", report.Provider)
	if report.Model != "" {
		fmt.Fprintf(w, "Model:    %s\n", report.Model)
	}
	if report.Endpoint != "" {
		fmt.Fprintf(w, "Endpoint: %s\n", report.Endpoint)
	}
	fmt.Fprintln(w)
	for _, c := range report.Checks {
		doctorPrint(w, c.Name, c.Status, c.Detail)
	}
	if report.Healthy {
		fmt.Fprintln(w, "\nResult: healthy")
	} else {
		fmt.Fprintln(w, "\nResult: unhealthy")
	}
}

func doctorPrint(w io.Writer, label, status, detail string) {
	if detail != "" {
		fmt.Fprintf(w, "  %s: %s (%s)\n", label, status, detail)
	} else {
		fmt.Fprintf(w, "  %s: %s\n", label, status)
	}
}

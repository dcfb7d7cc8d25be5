package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dtnghia/merchgate/internal/control"
	"github.com/dtnghia/merchgate/internal/core/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show breaker, budget and call metrics of the running service",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/status", cfg.Server.Port))
	if err != nil {
		slog.Error("Failed to reach service", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var statuses []control.ProviderStatus
	if err := json.NewDecoder(resp.Body).Decode(&statuses); err != nil {
		slog.Error("Failed to decode status", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "PROVIDER\tBREAKER\tBUDGET\tATTEMPTS\tRETRY RATE\tSUCCESS RATE")

	for _, st := range statuses {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.0f/%.0f\t%d\t%.2f\t%.2f\n",
			st.Provider,
			st.Breaker.State,
			st.Throttle.AvailableUnits, st.Throttle.MaxUnits,
			st.Metrics.Attempts,
			st.Metrics.RetryRate,
			st.Metrics.SuccessRate,
		)
	}
	_ = w.Flush()
}

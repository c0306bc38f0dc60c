// cmd_status.go - Status-Command: Queue-Statistiken des Servers anzeigen
// Hauptfunktionen: StatusHandler
package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/7blacky7/tensorbatch/api"
	"github.com/7blacky7/tensorbatch/envconfig"
)

// StatusHandler holt /api/status vom Server und rendert eine Tabelle
func StatusHandler(cmd *cobra.Command, _ []string) error {
	host := envconfig.Host()

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, host.JoinPath("api", "status").String(), nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return api.StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var status api.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return err
	}

	if len(status.Queues) == 0 {
		fmt.Println("no batch resources registered")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"RESOURCE", "QUEUE", "PENDING", "SCHEDULED", "PROCESSED"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")

	for _, q := range status.Queues {
		queue := q.Queue
		if queue == "" {
			queue = "(default)"
		}
		table.Append([]string{
			q.Resource,
			queue,
			strconv.Itoa(q.PendingBatches),
			strconv.FormatInt(q.ScheduledTasks, 10),
			strconv.FormatInt(q.ProcessedBatches, 10),
		})
	}
	table.Render()

	return nil
}

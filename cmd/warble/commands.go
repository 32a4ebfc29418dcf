package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// --- workflows ---

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "List workflows on the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		typeFilter, _ := cmd.Flags().GetString("type")
		includeCompleted, _ := cmd.Flags().GetBool("all")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/workflows?type=%s&include_completed=%t", typeFilter, includeCompleted)
		resp, err := client.get(path)
		if err != nil {
			return err
		}

		var workflows []struct {
			ID             string `json:"id"`
			Type           string `json:"type"`
			CurrentStep    string `json:"current_step"`
			TargetUsername string `json:"target_username"`
			CheckAfter     string `json:"check_after"`
			Outcome        string `json:"outcome"`
		}
		if err := decodeJSON(resp, &workflows); err != nil {
			return err
		}

		if len(workflows) == 0 {
			fmt.Println("no workflows")
			return nil
		}
		for _, wf := range workflows {
			status := wf.CurrentStep
			if wf.Outcome != "" {
				status = "done: " + wf.Outcome
			}
			line := fmt.Sprintf("%-40s %-12s @%-18s %s", wf.ID, wf.Type, wf.TargetUsername, status)
			if wf.CheckAfter != "" && wf.Outcome == "" {
				line += " (check after " + wf.CheckAfter + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

// --- budget ---

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Show today's action budget usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/budget")
		if err != nil {
			return err
		}

		var budget struct {
			Summary string `json:"summary"`
		}
		if err := decodeJSON(resp, &budget); err != nil {
			return err
		}
		fmt.Println(budget.Summary)
		return nil
	},
}

// --- cleanup ---

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Print instructions for the non-follower cleanup sweep",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Cleanup mutates the relationship graph; it is deliberately only
		// reachable through the agent-facing MCP tool so every unfollow
		// goes through the same budget and protection checks in one place.
		printWarning("cleanup runs via the agent: call the cleanup_followers MCP tool")
		return nil
	},
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent actions from the archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(fmt.Sprintf("/history?limit=%d", limit))
		if err != nil {
			return err
		}

		var entries []json.RawMessage
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	},
}

func init() {
	workflowsCmd.Flags().String("type", "", "filter by workflow type")
	workflowsCmd.Flags().Bool("all", false, "include completed workflows")
	historyCmd.Flags().Int("limit", 50, "maximum entries to show")
}

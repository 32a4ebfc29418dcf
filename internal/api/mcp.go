package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/warblehq/warble/internal/state"
)

// NewMCPServer creates an MCP server with all warble tools and resources
// registered.
func NewMCPServer(svc *Service) *server.MCPServer {
	s := server.NewMCPServer(
		"warble",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("warble — bounded, auditable engagement workflows against the platform. "+
			"Create workflows, process due ones, and answer pending tasks; daily budgets and dedup are enforced server-side."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("process_workflows",
			mcp.WithDescription("Advance all due workflows by one pass. Returns step summaries, the batch status, and at most one pending task that needs your input."),
		),
		mcpProcessWorkflows(svc),
	)

	s.AddTool(
		mcp.NewTool("create_workflow",
			mcp.WithDescription("Create a new workflow. follow_cycle follows a target, replies to a recent post, and later cleans up if they don't follow back; reply_track audits engagement on a reply you already posted."),
			mcp.WithString("type", mcp.Description("Workflow type: follow_cycle or reply_track"), mcp.Required()),
			mcp.WithString("target_user_id", mcp.Description("Numeric user id of the target"), mcp.Required()),
			mcp.WithString("target_username", mcp.Description("Handle of the target (@ optional)"), mcp.Required()),
			mcp.WithObject("context", mcp.Description("Optional initial context, e.g. {\"reply_tweet_id\": \"...\"} for reply_track")),
		),
		mcpCreateWorkflow(svc),
	)

	s.AddTool(
		mcp.NewTool("submit_response",
			mcp.WithDescription("Deliver the input a paused workflow asked for (e.g. reply text). The action itself happens on the next process_workflows call."),
			mcp.WithString("workflow_id", mcp.Description("Id of the workflow awaiting input"), mcp.Required()),
			mcp.WithString("response", mcp.Description("The requested input"), mcp.Required()),
		),
		mcpSubmitResponse(svc),
	)

	s.AddTool(
		mcp.NewTool("workflow_status",
			mcp.WithDescription("List workflows as JSON."),
			mcp.WithString("type", mcp.Description("Filter by type: follow_cycle or reply_track")),
			mcp.WithBoolean("include_completed", mcp.Description("Also list finished workflows (default false)")),
		),
		mcpWorkflowStatus(svc),
	)

	s.AddTool(
		mcp.NewTool("cleanup_followers",
			mcp.WithDescription("Unfollow accounts that do not follow back, respecting the unfollow budget, protected accounts, and accounts managed by active workflows."),
			mcp.WithNumber("max_unfollow", mcp.Description("Maximum accounts to unfollow in this batch (default 10)")),
			mcp.WithNumber("max_pages", mcp.Description("Maximum follower-list pages to scan (default 5)")),
		),
		mcpCleanupFollowers(svc),
	)

	s.AddTool(
		mcp.NewTool("budget_status",
			mcp.WithDescription("Show today's action budget usage across all action kinds."),
		),
		mcpBudgetStatus(svc),
	)

	s.AddTool(
		mcp.NewTool("record_mention",
			mcp.WithDescription("Record that a user mentioned the operator. Replies to known mentioners are posted directly instead of as quotes."),
			mcp.WithString("user_id", mcp.Description("Numeric user id of the mentioner"), mcp.Required()),
		),
		mcpRecordMention(svc),
	)

	s.AddResource(
		mcp.NewResource(
			"warble://state/summary",
			"Engagement State Summary",
			mcp.WithResourceDescription("Budget usage and workflow counts as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSummary(svc),
	)

	return s
}

func mcpProcessWorkflows(svc *Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		summaries, task, status, err := svc.ProcessDue(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("processing failed: %v", err)), nil
		}

		var b strings.Builder
		b.WriteString("Status: " + status + "\n")
		for _, s := range summaries {
			b.WriteString("- " + s + "\n")
		}
		if task != nil {
			b.WriteString("\nPending task:\n")
			data, err := json.MarshalIndent(task, "", "  ")
			if err != nil {
				return mcpError(fmt.Sprintf("failed to marshal task: %v", err)), nil
			}
			b.Write(data)
		}
		return mcpText(b.String()), nil
	}
}

func mcpCreateWorkflow(svc *Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		typ, err := req.RequireString("type")
		if err != nil {
			return mcpError("type is required"), nil
		}
		userID, err := req.RequireString("target_user_id")
		if err != nil {
			return mcpError("target_user_id is required"), nil
		}
		username, err := req.RequireString("target_username")
		if err != nil {
			return mcpError("target_username is required"), nil
		}

		initial := map[string]string{}
		if raw, ok := req.GetArguments()["context"].(map[string]any); ok {
			for k, v := range raw {
				if s, ok := v.(string); ok {
					initial[k] = s
				}
			}
		}

		wf, err := svc.CreateWorkflow(state.WorkflowType(typ), userID, username, initial)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(fmt.Sprintf("Created %s workflow %s targeting @%s", wf.Type, wf.ID, wf.TargetUsername)), nil
	}
}

func mcpSubmitResponse(svc *Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workflowID, err := req.RequireString("workflow_id")
		if err != nil {
			return mcpError("workflow_id is required"), nil
		}
		response, err := req.RequireString("response")
		if err != nil {
			return mcpError("response is required"), nil
		}

		wf, err := svc.SubmitResponse(workflowID, response)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(fmt.Sprintf("Response accepted; workflow %s will continue at step %s on the next process_workflows call", wf.ID, wf.CurrentStep)), nil
	}
}

func mcpWorkflowStatus(svc *Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		typeFilter := state.WorkflowType(req.GetString("type", ""))
		includeCompleted := req.GetBool("include_completed", false)

		workflows := svc.Status(typeFilter, includeCompleted)
		if len(workflows) == 0 {
			return mcpText("[]"), nil
		}
		data, err := json.Marshal(workflows)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal workflows: %v", err)), nil
		}
		return mcpText(string(data)), nil
	}
}

func mcpCleanupFollowers(svc *Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		maxUnfollow := req.GetInt("max_unfollow", 10)
		maxPages := req.GetInt("max_pages", 5)

		unfollowed, skipped, err := svc.CleanupBatch(ctx, maxUnfollow, maxPages)
		if err != nil {
			return mcpError(fmt.Sprintf("cleanup failed: %v", err)), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Unfollowed %d account(s)", len(unfollowed))
		if len(unfollowed) > 0 {
			b.WriteString(": " + strings.Join(unfollowed, ", "))
		}
		if len(skipped) > 0 {
			b.WriteString("\nSkipped: " + strings.Join(skipped, ", "))
		}
		return mcpText(b.String()), nil
	}
}

func mcpBudgetStatus(svc *Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpText(svc.BudgetSummary()), nil
	}
}

func mcpRecordMention(svc *Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		if err := svc.RecordMention(userID); err != nil {
			return mcpError(fmt.Sprintf("failed to record mention: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Recorded mention by user %s", userID)), nil
	}
}

func mcpResourceSummary(svc *Service) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		workflows := svc.Status("", true)
		active := 0
		for _, wf := range workflows {
			if wf.Active() {
				active++
			}
		}

		summary := struct {
			Budget          string `json:"budget"`
			ActiveWorkflows int    `json:"active_workflows"`
			TotalWorkflows  int    `json:"total_workflows"`
			GeneratedAt     string `json:"generated_at"`
		}{
			Budget:          svc.BudgetSummary(),
			ActiveWorkflows: active,
			TotalWorkflows:  len(workflows),
			GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
		}

		data, err := json.Marshal(summary)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal summary: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

package main

import (
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

func newTicketsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tickets",
		Aliases: []string{"ticket"},
		Short:   "Manage support tickets",
	}
	cmd.AddCommand(newTicketsListCommand())
	cmd.AddCommand(newTicketsGetCommand())
	cmd.AddCommand(newTicketsCreateCommand())
	cmd.AddCommand(newTicketsProcessCommand())
	cmd.AddCommand(newTicketsReviewCommand())
	return cmd
}

func newTicketsListCommand() *cobra.Command {
	var (
		status string
		email  string
		query  string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tickets, newest first",
		Example: `  caredesk tickets list
  caredesk tickets list --status=agent_waiting_for_human`,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			if status != "" {
				params.Set("status", status)
			}
			if email != "" {
				params.Set("email", email)
			}
			if query != "" {
				params.Set("q", query)
			}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}
			data, err := newClient().get("/api/tickets", params)
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().StringVar(&email, "email", "", "Filter by customer email")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Search subject and content")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of tickets")
	return cmd
}

func newTicketsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <ticket-id>",
		Short: "Show a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newClient().get("/api/tickets/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
}

func newTicketsCreateCommand() *cobra.Command {
	var subject, email, content string
	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Open a new ticket",
		Example: `  caredesk tickets create --subject="Refund" --email=jane@example.com --content="I was charged twice"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newClient().post("/api/tickets", map[string]string{
				"subject": subject,
				"email":   email,
				"content": content,
			})
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Ticket subject (required)")
	cmd.Flags().StringVar(&email, "email", "", "Customer email (required)")
	cmd.Flags().StringVar(&content, "content", "", "Customer query (required)")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func newTicketsProcessCommand() *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "process <ticket-id>",
		Short: "Run or resume the support agent on a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"ticketId": args[0]}
			if agentID != "" {
				body["agentId"] = agentID
			}
			data, err := newClient().post("/api/generate-answers", body)
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "Support agent persona id")
	return cmd
}

func newTicketsReviewCommand() *cobra.Command {
	var (
		reviewer string
		approve  bool
		reject   bool
		comment  string
		answer   string
	)
	cmd := &cobra.Command{
		Use:   "review <ticket-id>",
		Short: "Approve or reject the answer the agent wants to send",
		Example: `  caredesk tickets review TK-1 --approve --answer="We refunded you."
  caredesk tickets review TK-1 --reject --comment="Ask for the order number"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"reviewer": reviewer,
				"approved": approve && !reject,
				"comment":  comment,
			}
			if answer != "" {
				body["finalAnswer"] = answer
			}
			data, err := newClient().post("/api/tickets/"+url.PathEscape(args[0])+"/review", body)
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
	cmd.Flags().StringVar(&reviewer, "reviewer", envOr("USER", ""), "Reviewer name (ignored when the server uses tokens)")
	cmd.Flags().BoolVar(&approve, "approve", false, "Approve the answer")
	cmd.Flags().BoolVar(&reject, "reject", false, "Reject the answer")
	cmd.Flags().StringVar(&comment, "comment", "", "Comment passed back to the agent")
	cmd.Flags().StringVar(&answer, "answer", "", "Edited final answer to send on approval")
	cmd.MarkFlagsMutuallyExclusive("approve", "reject")
	cmd.MarkFlagsOneRequired("approve", "reject")
	return cmd
}

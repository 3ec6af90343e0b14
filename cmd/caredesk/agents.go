package main

import (
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

func newAgentsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agents",
		Aliases: []string{"agent"},
		Short:   "Manage support agent personas",
	}
	cmd.AddCommand(newAgentsListCommand())
	cmd.AddCommand(newAgentsGetCommand())
	cmd.AddCommand(newAgentsCreateCommand())
	cmd.AddCommand(newAgentsSetActiveCommand("activate", true))
	cmd.AddCommand(newAgentsSetActiveCommand("deactivate", false))
	return cmd
}

func newAgentsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List personas",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newClient().get("/api/agents", nil)
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
}

func newAgentsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <agent-id>",
		Short: "Show a persona",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newClient().get("/api/agents/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
}

func newAgentsCreateCommand() *cobra.Command {
	var (
		name        string
		description string
		personality string
		specialties string
		autonomous  bool
	)
	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Create a persona",
		Example: `  caredesk agents create --name=Billie --description="Billing specialist" --personality="Calm" --specialties=refund,billing`,
		RunE: func(cmd *cobra.Command, args []string) error {
			list := []string{}
			for _, s := range strings.Split(specialties, ",") {
				if s = strings.TrimSpace(s); s != "" {
					list = append(list, s)
				}
			}
			data, err := newClient().post("/api/agents", map[string]any{
				"name":        name,
				"description": description,
				"personality": personality,
				"specialties": list,
				"autonomous":  autonomous,
			})
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Persona name (required)")
	cmd.Flags().StringVar(&description, "description", "", "What the persona does (required)")
	cmd.Flags().StringVar(&personality, "personality", "", "Tone of voice (required)")
	cmd.Flags().StringVar(&specialties, "specialties", "", "Comma separated specialties")
	cmd.Flags().BoolVar(&autonomous, "autonomous", false, "Answer customers without human review")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("personality")
	return cmd
}

func newAgentsSetActiveCommand(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <agent-id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a persona",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newClient().put("/api/agents/"+url.PathEscape(args[0]), map[string]bool{"active": active})
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
}

func newDraftCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "draft <customer query>",
		Short:   "Draft three answer proposals for a query",
		Example: `  caredesk draft "My parcel never arrived"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newClient().post("/api/proposals", map[string]string{
				"customerQuery": strings.Join(args, " "),
			})
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
}

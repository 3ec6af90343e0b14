package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/caredesk/auth"
	"github.com/hupe1980/caredesk/config"
)

func newTokenCommand() *cobra.Command {
	var (
		configPath string
		name       string
	)
	cmd := &cobra.Command{
		Use:     "token <reviewer>",
		Short:   "Issue a reviewer token signed with the configured secret",
		Example: `  CAREDESK_JWT_SECRET=s3cret caredesk token alice --name="Alice Doe"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret (or CAREDESK_JWT_SECRET) is not set")
			}

			v := auth.NewVerifier(cfg.Auth.JWTSecret, func(o *auth.Options) {
				o.Issuer = cfg.Auth.Issuer
				o.TokenTTL = cfg.Auth.TokenTTL.Std()
			})

			tok, err := v.Issue(args[0], name)
			if err != nil {
				return err
			}

			fmt.Fprintln(os.Stdout, tok)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("CAREDESK_CONFIG"), "YAML or JSON config file")
	cmd.Flags().StringVar(&name, "name", "", "Display name carried in the token")
	return cmd
}

package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"authmsg/internal/app"
)

func bindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bind",
		Short: "Bind the application to the authority",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := app.NewWire(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer w.Close()

			a := cfg.Authority
			cred, err := w.Binder.Bind(cmd.Context(), a.ClientID, a.ClientSecret, a.Scopes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bound %s at %s\nScopes: %v\nValid before: %s\n",
				cred.ClientID, cred.Endpoint, cred.Scopes, cred.ValidBefore.Format(time.RFC3339))
			return nil
		},
	}
}

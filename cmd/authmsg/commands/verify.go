package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"authmsg/internal/app"
	"authmsg/internal/crypto"
	"authmsg/internal/domain"
)

func verifyCmd() *cobra.Command {
	var title, body string
	cmd := &cobra.Command{
		Use:   "verify <user>",
		Short: "Ask a user to approve a verification request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := app.NewWire(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer w.Close()

			ctx := cmd.Context()
			a := cfg.Authority
			cred, err := w.Binder.Bind(ctx, a.ClientID, a.ClientSecret, a.Scopes)
			if err != nil {
				return err
			}
			if title == "" {
				title = cfg.Workflow.Title
			}
			if body == "" {
				body = cfg.Workflow.Body
			}
			res, err := w.Verifier.Request(ctx, cred, domain.UserID(args[0]), title, body, "").Await(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s approved (correlation %s)\nKey token fingerprint: %s\n",
				res.UserID, res.CorrelationID, crypto.Fingerprint([]byte(res.KeyToken)))
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "request title shown to the user")
	cmd.Flags().StringVar(&body, "body", "", "request body shown to the user")
	return cmd
}

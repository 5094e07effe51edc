package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

const flagShort = "short"

// AttachCobraVersionCommand adds a `version` subcommand to root.
func AttachCobraVersionCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information.",
		Long: `Print the auto-updater version, commit and build time.
The same version and commit are sent to release hosts in the User-Agent header.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			short, err := cmd.Flags().GetBool(flagShort)
			if err != nil {
				return err
			}

			output := Full()
			if short {
				output = Short()
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), output)

			return err
		},
	}

	cmd.Flags().Bool(flagShort, false, "print only the version number")
	root.AddCommand(cmd)
}

package cmd

import (
	"errors"
	"fmt"

	"cloudsync/core/config"
	"cloudsync/core/link"
	"cloudsync/core/state"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var linkFlag string

// stateCmd groups the commands working on the persisted sync state.
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect the persisted sync state",
}

// stateDumpCmd prints the saved model of a link as YAML.
var stateDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the saved state of a link",
	Long:  `Prints the desired storages and equivalents saved for a link. Without --link the saved link IDs are listed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configDir)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}

		st, err := state.Open(cfg.Sync.StatePath)
		if err != nil {
			return err
		}
		defer st.Close()

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()

		if linkFlag == "" {
			links, err := st.Links()
			if err != nil {
				return err
			}
			return enc.Encode(map[string][]string{"links": links})
		}

		m, err := st.Load(linkFlag)
		if errors.Is(err, state.ErrNotFound) {
			fmt.Fprintf(cmd.ErrOrStderr(), "no state saved for %s\n", linkFlag)
			return nil
		}
		if err != nil {
			return err
		}
		return enc.Encode(m)
	},
}

func init() {
	stateDumpCmd.Flags().StringVar(&linkFlag, "link", "", "link ID, e.g. "+link.ID(link.RemoteS3))
	stateCmd.AddCommand(stateDumpCmd)
	RootCmd.AddCommand(stateCmd)
}

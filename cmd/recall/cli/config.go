package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/recall/internal/credential"
	"github.com/felixgeelhaar/recall/internal/store"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage values kept in the store (API keys are encrypted)",
}

func openVault(cmd *cobra.Command) (*credential.Vault, store.Store, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	m, err := credential.NewManager()
	if err != nil {
		_ = s.Close()
		return nil, nil, err
	}
	return credential.NewVault(s, m), s, nil
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: fmt.Sprintf(`Set a configuration value. The keys %s and %s are
encrypted before they are written.`, credential.ProviderAPIKey, credential.DictionaryAPIKey),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, s, err := openVault(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := v.Set(args[0], args[1]); err != nil {
			return fmt.Errorf("failed to set config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved: %s\n", args[0])
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, s, err := openVault(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		val, err := v.Display(args[0])
		if err != nil {
			return err
		}
		if val == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "(not set)")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), val)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
}

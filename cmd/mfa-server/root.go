package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "mfa-server",
		Short:         "Multi-factor authentication API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to a YAML config file")
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before the environment is read")

	root.AddCommand(newServeCmd(v), newMethodsCmd(v))
	return root
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadFromCommand(cmd, v)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("addr", defaultAddr, "listen address")
	cmd.Flags().Bool("dev", false, "use an in-process Redis and development logging")
	return cmd
}

func newMethodsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List the methods this server can enable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadFromCommand(cmd, v)
			if err != nil {
				return err
			}
			catalogue := buildCatalogue(cfg)

			names := make([]string, 0, len(catalogue))
			for name := range catalogue {
				names = append(names, name)
			}
			slices.Sort(names)

			out := cmd.OutOrStdout()
			for _, name := range names {
				m, err := catalogue[name]()
				if err != nil {
					return err
				}
				enabled := " "
				if slices.Contains(cfg.Methods, name) {
					enabled = "*"
				}
				fmt.Fprintf(out, "%s %-14s %-22s %s\n", enabled, name, m.Name(), m.Description())
			}
			return nil
		},
	}
}

func loadFromCommand(cmd *cobra.Command, v *viper.Viper) (ServerConfig, error) {
	if err := bindFlags(cmd, v); err != nil {
		return ServerConfig{}, err
	}
	configFile, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")
	return loadConfig(v, configFile, envFile)
}

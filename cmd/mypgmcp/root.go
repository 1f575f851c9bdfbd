package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Antonhansel/my-pg-mcp/internal/configure"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	configPathKey     = "config"
	configPathEnv     = "MYPGMCP_CONFIG_PATH"
	defaultConfigPath = ".mypgmcp/config.json"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "mypgmcp",
		Short:         "PostgreSQL MCP server with a query safety gate",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	configPath := bindConfigPath(root.PersistentFlags())

	root.AddCommand(
		newServeCommand(configPath),
		newConfigureCommand(configPath),
		newDoctorCommand(configPath),
		newVersionCommand(),
	)
	return root
}

// bindConfigPath registers --config and returns its resolver. An explicit
// flag wins over MYPGMCP_CONFIG_PATH, which wins over the default.
func bindConfigPath(flags *pflag.FlagSet) func() string {
	v := viper.New()
	flags.StringP("config", "c", defaultConfigPath, "path to configuration file (env "+configPathEnv+")")
	mustBindFlag(v, configPathKey, configPathEnv, flags.Lookup("config"))
	return func() string { return v.GetString(configPathKey) }
}

func mustBindFlag(v *viper.Viper, key, env string, flag *pflag.Flag) {
	if flag == nil {
		panic(fmt.Sprintf("flag for key %s not found", key))
	}
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
	if err := v.BindEnv(key, env); err != nil {
		panic(err)
	}
}

func newServeCommand(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath())
		},
	}
}

func newConfigureCommand(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Run interactive configuration wizard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner(cmd.ErrOrStderr(), isTTY(stderrFd()))
			return configure.Run(configPath())
		},
	}
}

func newDoctorCommand(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and print agent connection snippets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return doctor(cmd.ErrOrStderr(), isTTY(stderrFd()), configPath())
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), versionString())
		},
	}
}

func versionString() string {
	return fmt.Sprintf("mypgmcp %s (%s %s/%s)", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

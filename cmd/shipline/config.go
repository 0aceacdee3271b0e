package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/shipline/internal/config"
)

var configUser bool

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify shipline configuration.

Without arguments, displays the effective configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the value in the project's
.shipline.yaml, or with --user in ~/.config/shipline/config.yaml.

Keys use dot notation, e.g. batch.max_size, phases.plan.command,
workers.backend.command. Each key can also be set with an environment
variable: batch.max_size is SHIPLINE_BATCH_MAX_SIZE.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
			return nil
		case 1:
			value, err := config.Value(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		default:
			return setConfigKey(args[0], args[1])
		}
	},
}

func init() {
	configCmd.Flags().BoolVar(&configUser, "user", false, "Write to the user config instead of the project config")
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	values := config.Values(cfg)
	for _, key := range config.SortedKeys(values) {
		v := values[key]
		if v == "" {
			v = dimColor.Sprint("(not set)")
		}
		fmt.Printf("%s: %s\n", key, v)
	}
	if p := config.GetProjectConfigPath(); p != "" {
		fmt.Printf("\n%s\n", dimColor.Sprint("project config: "+p))
	}
	fmt.Printf("%s\n", dimColor.Sprint("user config: "+config.GetUserConfigPath()))
}

// setConfigKey writes one value to the project or user config file.
func setConfigKey(key, value string) error {
	path := config.GetUserConfigPath()
	if !configUser {
		root, err := config.ProjectRoot()
		if err != nil {
			return err
		}
		path = filepath.Join(root, config.ProjectConfigName)
	}
	if err := config.Set(path, key, value); err != nil {
		return err
	}
	fmt.Printf("Set %s = %s (%s)\n", key, value, path)
	return nil
}

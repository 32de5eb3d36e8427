package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/deckhand-dev/deckhand/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and create configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration the daemon would run with, after defaults,
the config file, and DECKHAND_* environment variables are merged.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Println(gray("# loaded from " + cfg.Source))
		out, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(string(out))
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter deckhand.yaml in the current directory",
	Run: func(cmd *cobra.Command, args []string) {
		const filename = "deckhand.yaml"
		if _, err := os.Stat(filename); err == nil {
			fmt.Fprintf(os.Stderr, "Error: %s already exists, not overwriting\n", filename)
			os.Exit(1)
		}
		if err := os.WriteFile(filename, []byte(config.Starter()), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("%s Wrote %s\n", green("✓"), filename)
		fmt.Println()
		fmt.Println("Next steps:")
		fmt.Println(gray("  1. Edit deckhand.yaml: set github.owner and github.repo"))
		fmt.Println(gray("  2. Export a token:     export GITHUB_TOKEN=..."))
		fmt.Println(gray("  3. Check the setup:    deckhand doctor"))
		fmt.Println(gray("  4. Start watching:     deckhand watch"))
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

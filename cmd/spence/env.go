package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// envSection groups related flags in the generated .env.example.
type envSection struct {
	title string
	flags []envFlag
}

type envFlag struct {
	name    string
	example string // used instead of the flag default when set
	comment string
}

var envSections = []envSection{
	{
		title: "Resolver",
		flags: []envFlag{
			{name: "default-platform", comment: "Platform searched for free-text queries"},
			{name: "requests-per-second", comment: "Outbound requests per second per origin"},
			{name: "max-retries", comment: "Attempts per outbound request"},
			{name: "match-policy", comment: "weighted or nearest-duration"},
			{name: "match-threshold", comment: "Minimum weighted score for the top match"},
			{name: "candidate-limit", comment: "YouTube results considered per match"},
			{name: "search-limit", comment: "Default number of search results"},
		},
	},
	{
		title: "Spotify (optional, enables client credentials)",
		flags: []envFlag{
			{name: "spotify-client-id", example: "your_spotify_client_id", comment: "From developer.spotify.com"},
			{name: "spotify-client-secret", example: "your_spotify_client_secret", comment: "From developer.spotify.com"},
		},
	},
	{
		title: "SoundCloud (optional)",
		flags: []envFlag{
			{name: "soundcloud-client-id", comment: "Scraped from soundcloud.com when empty"},
		},
	},
	{
		title: "Cache and persistent store",
		flags: []envFlag{
			{name: "cache-size", comment: "Maximum cached resolutions"},
			{name: "cache-ttl", comment: "Age after which a resolution is stale"},
			{name: "store-path", example: "spence.db", comment: "SQLite file, empty disables"},
			{name: "store-purge-interval", comment: "How often expired rows are deleted"},
		},
	},
	{
		title: "Server",
		flags: []envFlag{
			{name: "server-host", comment: "HTTP server host"},
			{name: "server-port", comment: "HTTP server port"},
		},
	},
	{
		title: "Logging",
		flags: []envFlag{
			{name: "log-level", comment: "debug, info, warn, error"},
			{name: "log-format", comment: "json or text"},
		},
	},
}

func generateEnvExample(cmd *cobra.Command) error {
	fmt.Println("Generating .env.example file from current configuration...")

	content := generateEnvExampleContent(cmd)

	if err := os.WriteFile(".env.example", []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write .env.example: %w", err)
	}

	fmt.Println("✅ Successfully generated .env.example file")
	return nil
}

func generateEnvExampleContent(cmd *cobra.Command) string {
	var content strings.Builder

	content.WriteString("# =============================================================================\n")
	content.WriteString("# Spence Configuration\n")
	content.WriteString("# =============================================================================\n")
	content.WriteString("#\n")
	content.WriteString("# Copy this file to .env and update with your values\n")
	content.WriteString("# All environment variables have CLI flag equivalents (use --help to see them)\n")
	content.WriteString("#\n")
	content.WriteString("# Format: SPENCE_<SETTING>=value\n")
	content.WriteString("# CLI equivalent: --<setting>\n")
	content.WriteString("#\n")
	content.WriteString("# =============================================================================\n\n")

	for _, section := range envSections {
		generateSection(&content, cmd, section)
	}

	return content.String()
}

func generateSection(content *strings.Builder, cmd *cobra.Command, section envSection) {
	content.WriteString("# -----------------------------------------------------------------------------\n")
	fmt.Fprintf(content, "# %s\n", section.title)
	content.WriteString("# -----------------------------------------------------------------------------\n")

	names := make([]string, 0, len(section.flags))
	for _, flag := range section.flags {
		names = append(names, "--"+flag.name)
	}
	fmt.Fprintf(content, "# CLI: %s\n", strings.Join(names, ", "))

	for _, flag := range section.flags {
		defaultValue := getDefaultValueString(cmd, flag.name)
		value := defaultValue
		if flag.example != "" {
			value = flag.example
		}
		fmt.Fprintf(content, "%s=%s  # %s (default: %s)\n",
			flagToEnvVar(flag.name), value, flag.comment, defaultValue)
	}
	content.WriteString("\n")
}

func flagToEnvVar(flagName string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func getDefaultValueString(cmd *cobra.Command, flagName string) string {
	if f := cmd.Root().PersistentFlags().Lookup(flagName); f != nil {
		return f.DefValue
	}
	return ""
}

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apexion-ai/iad/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive configuration wizard",
		Long:  "Guides you through setting up iad: choose a provider, enter your API key, and save the config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(os.Stdin, cmd.OutOrStdout(), cfgFile)
		},
	}
}

// initProviders lists the wizard's choices, openai and anthropic first.
func initProviders() []string {
	names := []string{"openai", "anthropic"}
	var rest []string
	for name := range config.KnownProviderBaseURLs {
		if name != "openai" && name != "anthropic" {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

func runInit(in io.Reader, out io.Writer, path string) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "Welcome to the iad configuration wizard!")
	fmt.Fprintln(out)

	providers := initProviders()
	fmt.Fprintln(out, "Available providers:")
	for i, p := range providers {
		fmt.Fprintf(out, "  %d. %s\n", i+1, p)
	}
	fmt.Fprintf(out, "\nSelect provider (1-%d) [1]: ", len(providers))
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	selectedIdx := 0
	if input != "" {
		if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(providers) {
			selectedIdx = n - 1
		}
	}
	providerName := providers[selectedIdx]
	fmt.Fprintf(out, "Selected: %s\n\n", providerName)

	var pc config.ProviderConfig
	if providerName != "ollama" {
		fmt.Fprintf(out, "Enter API key for %s: ", providerName)
		apiKey, _ := reader.ReadString('\n')
		pc.APIKey = strings.TrimSpace(apiKey)
		if pc.APIKey == "" {
			return fmt.Errorf("API key cannot be empty")
		}
	}

	def := config.KnownProviderModels[providerName]
	fmt.Fprintf(out, "Model [%s]: ", def)
	model, _ := reader.ReadString('\n')
	if model = strings.TrimSpace(model); model != "" && model != def {
		pc.Model = model
	}

	if path == "" {
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.yaml")
	}
	if err := config.SaveProviderToFile(path, providerName, pc); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Fprintf(out, "\nConfig saved to %s\n", path)
	fmt.Fprintln(out, "Token limits default to 15000 (soft) and 20000 (hard); change them under budget: in the file.")
	fmt.Fprintln(out, "You can now run: iad")
	return nil
}

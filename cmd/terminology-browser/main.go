package main

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/namaste/internal/browser"
	"github.com/ehr/namaste/internal/client"
	"github.com/ehr/namaste/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "terminology-browser",
		Short: "Search NAMAST-E terms and generate FHIR resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBrowser(cmd)
		},
	}
	rootCmd.PersistentFlags().String("api", "", "Terminology API base URL (overrides API_BASE_URL)")

	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(generateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the config and builds a client that logs to logOut.
func setup(cmd *cobra.Command, logOut io.Writer) (*config.Config, *client.Client, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, zerolog.Nop(), err
	}
	if api, _ := cmd.Flags().GetString("api"); api != "" {
		cfg.APIBaseURL = api
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, zerolog.Nop(), err
	}

	logger := zerolog.New(logOut).With().Timestamp().Str("component", "browser").Logger()
	c := client.New(cfg.APIBaseURL, client.Options{
		Timeout:         cfg.HTTPTimeout,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
		Logger:          logger,
	})
	return cfg, c, logger, nil
}

func runBrowser(cmd *cobra.Command) error {
	// The terminal belongs to the UI, so logs go to a file.
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	cfg, c, logger, err := setup(cmd, logFile)
	if err != nil {
		return err
	}
	logger.Info().Str("api", c.BaseURL()).Msg("browser started")

	m := browser.New(c, browser.Options{
		Debounce:  cfg.SearchDebounce,
		MinLength: cfg.SearchMinLength,
		Logger:    logger,
	})
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		logger.Error().Err(err).Msg("browser exited with error")
		return err
	}
	logger.Info().Msg("browser stopped")
	return nil
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Print the terms whose NAMAST-E name contains query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, _, err := setup(cmd, os.Stderr)
			if err != nil {
				return err
			}
			terms, err := c.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(terms) == 0 {
				fmt.Println(browser.MsgNoResults)
				return nil
			}
			for _, t := range terms {
				fmt.Printf("%s\t%s\t%s\n", t.NamasteTerm, t.TM2Term, t.BioTerm)
			}
			return nil
		},
	}
}

func generateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate <namaste_term>",
		Short: "Print the FHIR resource generated for a NAMAST-E term",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, _, err := setup(cmd, os.Stderr)
			if err != nil {
				return err
			}
			term, err := findTerm(cmd.Context(), c, args[0])
			if err != nil {
				return err
			}
			raw, err := c.GenerateFHIR(cmd.Context(), term)
			if err != nil {
				return err
			}
			pretty, err := client.PrettyJSON(raw)
			if err != nil {
				return err
			}
			fmt.Println(pretty)
			return nil
		},
	}
}

// findTerm resolves a NAMAST-E name to its full mapping through search.
func findTerm(ctx context.Context, c browser.API, name string) (*client.Term, error) {
	terms, err := c.Search(ctx, name)
	if err != nil {
		return nil, err
	}
	for i := range terms {
		if terms[i].NamasteTerm == name {
			return &terms[i], nil
		}
	}
	return nil, fmt.Errorf("no term named %q", name)
}

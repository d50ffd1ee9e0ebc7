package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"csvfilter/internal/config"
)

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and exit",
		Long: `Load the configuration (file plus CSVFILTER_* environment overrides),
report every issue and exit.

Exit codes:
  0 - Configuration is valid (warnings may be printed)
  1 - Validation errors
  2 - The file could not be read or decoded`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := a.checkConfig(); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "configuration is valid")
			return nil
		},
	}
}

// checkConfig prints every issue and fails on errors.
func (a *app) checkConfig() error {
	issues := config.ValidateConfig(a.cfg)
	for _, iss := range issues {
		fmt.Fprintf(a.stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return &exitError{code: ExitValidationError, err: fmt.Errorf("configuration is invalid")}
	}
	return nil
}

package analyze

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nameatlas/nameatlas/internal/analysis"
	"github.com/nameatlas/nameatlas/internal/conf"
)

// Command creates the command for a one-shot name analysis run.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze name combinations once and print the results",
		Long:  "Expand the given first and middle names into full-name combinations, fetch metadata for every distinct part and print the annotated results.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(settings.Input.FirstNames) == 0 {
				return fmt.Errorf("at least one first name is required, use --first")
			}
			if settings.Input.LastName == "" {
				return fmt.Errorf("a last name is required, use --last")
			}
			return analysis.RunOnce(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the analyze command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringSliceVar(&settings.Input.FirstNames, "first", nil, "First name candidates (comma separated or repeated)")
	cmd.Flags().StringSliceVar(&settings.Input.MiddleNames, "middle", nil, "Middle name candidates (comma separated or repeated)")
	cmd.Flags().StringVar(&settings.Input.LastName, "last", "", "Family name appended to every combination")
	cmd.Flags().BoolVar(&settings.Input.JSON, "json", false, "Print results as JSON instead of a table")

	return nil
}

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/conneroisu/themesmith/internal/config"
)

// OutputFlags are shared by the commands that print structured data.
type OutputFlags struct {
	Format string
	Quiet  bool
}

var outputFormats = []string{"table", "json", "yaml"}

func addOutputFlags(cmd *cobra.Command, flags *OutputFlags, def string) {
	cmd.Flags().StringVarP(&flags.Format, "output", "o", def, "Output format (table|json|yaml)")
	cmd.Flags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress output")
	AddFlagValidation(cmd.Flags(), "output", ValidateChoice(outputFormats...))
}

// AddFlagValidation validates every value set on the named flag.
func AddFlagValidation(flags *pflag.FlagSet, flagName string, validator func(string) error) {
	flag := flags.Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// ValidateChoice accepts only one of choices.
func ValidateChoice(choices ...string) func(string) error {
	return func(val string) error {
		for _, c := range choices {
			if val == c {
				return nil
			}
		}
		return fmt.Errorf("invalid value %q, must be one of: %s", val, strings.Join(choices, ", "))
	}
}

// ValidateEnvironment accepts development and production in any case.
func ValidateEnvironment(val string) error {
	if !config.Environment(strings.ToLower(val)).Valid() {
		return fmt.Errorf("invalid environment %q, must be %s or %s", val, config.EnvDevelopment, config.EnvProduction)
	}
	return nil
}

// ValidateFileExists accepts an empty value or an existing file.
func ValidateFileExists(filename string) error {
	if filename == "" {
		return nil
	}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", filename)
	}
	return nil
}

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// AddFlagValidation makes flagName reject values validator refuses at parse
// time, before the command runs.
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:       flag.Value,
		validator:   validator,
		originalSet: flag.Value.Set,
	}
}

type validatingValue struct {
	pflag.Value
	validator   func(string) error
	originalSet func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.originalSet(val)
}

// ValidateFormat accepts format when it is one of supported and otherwise
// suggests the closest supported value.
func ValidateFormat(format string, supported []string) error {
	for _, s := range supported {
		if format == s {
			return nil
		}
	}

	msg := fmt.Sprintf("unsupported format %q (supported: %s)", format, strings.Join(supported, ", "))
	for _, s := range supported {
		if format != "" && (strings.HasPrefix(s, strings.ToLower(format)) || strings.HasPrefix(strings.ToLower(format), s)) {
			return fmt.Errorf("%s; did you mean %q?", msg, s)
		}
	}
	return fmt.Errorf("%s", msg)
}

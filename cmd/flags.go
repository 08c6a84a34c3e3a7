package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// mustGet reads a flag through one of the pflag getters and panics when the
// flag is missing or has another type. Flags are registered in init(), so a
// failure here is a programming bug rather than bad user input.
func mustGet[T any](cmd *cobra.Command, name string, get func(string) (T, error)) T {
	val, err := get(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s on %q: %v", name, cmd.Name(), err))
	}
	return val
}

func mustGetBool(cmd *cobra.Command, name string) bool {
	return mustGet(cmd, name, cmd.Flags().GetBool)
}

func mustGetInt(cmd *cobra.Command, name string) int {
	return mustGet(cmd, name, cmd.Flags().GetInt)
}

func mustGetString(cmd *cobra.Command, name string) string {
	return mustGet(cmd, name, cmd.Flags().GetString)
}

func mustGetDuration(cmd *cobra.Command, name string) time.Duration {
	return mustGet(cmd, name, cmd.Flags().GetDuration)
}

// mustGetStringArray keeps commas inside values, unlike GetStringSlice.
func mustGetStringArray(cmd *cobra.Command, name string) []string {
	return mustGet(cmd, name, cmd.Flags().GetStringArray)
}

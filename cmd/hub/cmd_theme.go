package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"engineerhub/internal/prefs"
)

// themeCmd reads or stores the color theme
var themeCmd = &cobra.Command{
	Use:       "theme [light|dark|system]",
	Short:     "Show or set the color theme",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{string(prefs.ThemeLight), string(prefs.ThemeDark), string(prefs.ThemeSystem)},
	RunE:      runTheme,
}

func runTheme(cmd *cobra.Command, args []string) error {
	store, err := openPrefs(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 0 {
		t, err := store.Theme(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), t)
		return nil
	}

	t, err := prefs.ParseTheme(args[0])
	if err != nil {
		return err
	}
	if err := store.SetTheme(cmd.Context(), t); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "theme set to %s\n", t)
	return nil
}

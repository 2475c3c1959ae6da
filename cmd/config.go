package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/till/internal/config"
	"github.com/marcus/till/internal/output"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Manage till configuration",
	GroupID: "system",
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if err := config.Set(configPath(), key, val); err != nil {
			if errors.Is(err, config.ErrUnknownKey) && !jsonOut {
				defer fmt.Println("Valid keys:", strings.Join(config.Keys(), ", "))
			}
			return fail(err)
		}
		output.Success("set %s = %s", key, val)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a config value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := strings.ToLower(args[0])
		val, ok := lookup(config.Redacted(appConfig), key)
		if !ok {
			err := fmt.Errorf("%w %q", config.ErrUnknownKey, key)
			if !jsonOut {
				defer fmt.Println("Valid keys:", strings.Join(config.Keys(), ", "))
			}
			return fail(err)
		}
		fmt.Println(val)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:     "show",
	Aliases: []string{"list"},
	Short:   "Show the effective configuration (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := config.Redacted(appConfig)
		if jsonOut {
			return output.JSON(settings)
		}
		fmt.Printf("# %s\n", configPath())
		for _, line := range flatten("", settings) {
			fmt.Println(line)
		}
		return nil
	},
}

// lookup walks a dotted key through nested maps.
func lookup(m map[string]any, key string) (any, bool) {
	head, rest, nested := strings.Cut(key, ".")
	v, ok := m[head]
	if !ok {
		return nil, false
	}
	if !nested {
		return v, true
	}
	sub, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return lookup(sub, rest)
}

// flatten renders nested settings as sorted "a.b = v" lines.
func flatten(prefix string, m map[string]any) []string {
	var out []string
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			out = append(out, flatten(key, sub)...)
			continue
		}
		out = append(out, fmt.Sprintf("%s = %v", key, v))
	}
	sort.Strings(out)
	return out
}

func init() {
	configCmd.AddCommand(configSetCmd, configGetCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}

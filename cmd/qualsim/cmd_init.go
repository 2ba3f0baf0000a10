package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/qualsim/internal/constants"
	"github.com/nvandessel/qualsim/internal/pathutil"
	"github.com/spf13/cobra"
)

const configTemplate = `# qualsim configuration
# Values here override ~/.qualsim/config.yaml; QUALSIM_* environment
# variables override both.

logging:
  level: info      # info, debug (writes decisions.jsonl) or trace
  format: text     # text or json

simulation:
  max_nodes: %d
  max_branch_depth: %d
  parallelism: %d
  timeout: 0s      # 0 disables the run timeout

output:
  format: text     # text, json, yaml or dot
  # dir: ${HOME}/qualsim-runs

store:
  enabled: true
  scope: local     # local, global or both
`

const exampleKB = `# Example knowledge base: a flashlight with a battery, a switch and a bulb.
# Try:
#   qualsim simulate on_off
#   qualsim simulate uncertain_battery --format dot
#   qualsim levels flashlight battery.level --last-known med --trend down

quantity_spaces:
  - name: battery_level
    levels: [empty, low, med, high]
  - name: on_off
    levels: ["off", "on"]
  - name: brightness
    levels: [none, dim, bright]
  - name: size
    levels: [small, large]

object_types:
  - name: flashlight
    version: "1"
    parts:
      - name: battery
        attributes:
          - name: level
            space: battery_level
            default: high
      - name: switch
        attributes:
          - name: state
            space: on_off
            default: "off"
      - name: bulb
        attributes:
          - name: state
            space: on_off
            default: "off"
          - name: brightness
            space: brightness
            default: none
    global_attributes:
      - name: size
        space: size
        mutable: false
        default: small
    constraints:
      - name: bulb_needs_switch
        if: {attr: bulb.state, op: equals, value: "on"}
        requires: {attr: switch.state, op: equals, value: "on"}
        corrections:
          - target: bulb.state
            value: "off"
      - name: bulb_needs_charge
        if: {attr: bulb.state, op: equals, value: "on"}
        requires: {attr: battery.level, op: not_equals, value: empty}
      - name: bulb_dark_when_off
        if: {attr: bulb.state, op: equals, value: "off"}
        requires: {attr: bulb.brightness, op: equals, value: none}
        corrections:
          - target: bulb.brightness
            value: none

actions:
  - name: turn_on
    object_type: flashlight
    preconditions:
      and:
        - {attr: battery.level, op: not_equals, value: empty}
        - {attr: switch.state, op: equals, value: "off"}
    effects:
      - {kind: set, target: switch.state, value: "on"}
      - {kind: set, target: bulb.state, value: "on"}
      - {kind: set, target: bulb.brightness, value: bright}
      - {kind: trend, target: battery.level, direction: down}
  - name: turn_off
    object_type: flashlight
    preconditions: {attr: switch.state, op: equals, value: "on"}
    effects:
      - {kind: set, target: switch.state, value: "off"}
      - {kind: trend, target: battery.level, direction: none}
  - name: recharge
    object_type: flashlight
    parameters: [to]
    preconditions:
      not: {attr: switch.state, op: equals, value: "on"}
    effects:
      - {kind: set, target: battery.level, value: $to}
  - name: top_up
    object_type: flashlight
    effects:
      - kind: step
        target: battery.level
        direction: up
        when: {attr: battery.level, op: lte, value: low}

scenarios:
  - name: on_off
    object_type: flashlight
    steps:
      - action: turn_on
      - action: turn_off
  - name: uncertain_battery
    object_type: flashlight
    initial:
      battery.level: [low, med, high]
    steps:
      - action: turn_on
      - action: turn_off
      - action: turn_on
  - name: recharge_then_light
    object_type: flashlight@1
    initial:
      battery.level: empty
    steps:
      - action: recharge
        params: {to: med}
      - action: turn_on
`

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize qualsim in the current directory",
		Long: `Create the .qualsim/ directory with a config file and a knowledge base
directory.

Examples:
  qualsim init                   # Initialize ./.qualsim with an example knowledge base
  qualsim init --example=false   # Without the example
  qualsim init --global          # Initialize ~/.qualsim`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			globalInit, _ := cmd.Flags().GetBool("global")
			withExample, _ := cmd.Flags().GetBool("example")
			jsonOut, _ := cmd.Flags().GetBool("json")

			var dataDir string
			if globalInit {
				dir, err := pathutil.GlobalDataDir()
				if err != nil {
					return fmt.Errorf("failed to get global path: %w", err)
				}
				dataDir = dir
			} else {
				dataDir = pathutil.LocalDataDir(root)
			}

			kbDir := filepath.Join(dataDir, constants.KBDirName)
			if err := pathutil.EnsureDir(kbDir); err != nil {
				return fmt.Errorf("failed to create %s directory: %w", constants.DataDirName, err)
			}

			var created []string
			configPath := filepath.Join(dataDir, constants.ConfigFileName)
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				content := fmt.Sprintf(configTemplate, constants.DefaultMaxNodes, constants.DefaultMaxBranchDepth, constants.DefaultParallelism)
				if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
					return fmt.Errorf("failed to create %s: %w", constants.ConfigFileName, err)
				}
				created = append(created, configPath)
			}

			if withExample {
				examplePath := filepath.Join(kbDir, "flashlight.yaml")
				if _, err := os.Stat(examplePath); os.IsNotExist(err) {
					if err := os.WriteFile(examplePath, []byte(exampleKB), 0644); err != nil {
						return fmt.Errorf("failed to create example knowledge base: %w", err)
					}
					created = append(created, examplePath)
				}
			}

			if jsonOut {
				result := map[string]interface{}{
					"status":  "initialized",
					"path":    dataDir,
					"created": created,
				}
				if globalInit {
					result["scope"] = "global"
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
			}

			out := cmd.OutOrStdout()
			if globalInit {
				fmt.Fprintf(out, "Initialized global %s/ at %s\n", constants.DataDirName, dataDir)
			} else {
				fmt.Fprintf(out, "Initialized %s/ in %s\n", constants.DataDirName, root)
			}
			for _, path := range created {
				fmt.Fprintf(out, "  created %s\n", path)
			}
			if withExample {
				fmt.Fprintln(out, "\nNext: qualsim simulate on_off")
			}
			return nil
		},
	}

	cmd.Flags().Bool("global", false, "Initialize the user directory (~/.qualsim) instead of the project")
	cmd.Flags().Bool("example", true, "Write an example knowledge base")

	return cmd
}

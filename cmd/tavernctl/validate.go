package main

import (
	"fmt"

	"github.com/tavernkit/core/pkg/presetcfg"
)

// ValidateCmd loads a preset/lorebook file and reports any unknown
// fields without printing the assembled plan — useful for catching a
// typo'd preset knob in CI before it reaches a running scheduler.
type ValidateCmd struct {
	Preset string `arg:"" help:"Path to a preset/lorebook YAML file." type:"path"`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	loader, err := presetcfg.NewLoader(c.Preset)
	if err != nil {
		return err
	}
	result, err := loader.Load()
	if err != nil {
		return err
	}

	if len(result.Warnings) == 0 {
		fmt.Printf("%s: OK, no unknown fields\n", c.Preset)
		return nil
	}

	fmt.Printf("%s: %d unknown field(s)\n", c.Preset, len(result.Warnings))
	for _, w := range result.Warnings {
		fmt.Printf("  - %s: %s\n", w.Path, w.Message)
	}
	return nil
}

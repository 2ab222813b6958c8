package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tavernkit/core/pkg/dialect"
	"github.com/tavernkit/core/pkg/pipeline"
	"github.com/tavernkit/core/pkg/presetcfg"
	"github.com/tavernkit/core/pkg/tokencount"
)

// AssembleCmd loads a fixture + preset and runs the Prompt Assembly core
// over them, printing the resulting Plan to stdout.
type AssembleCmd struct {
	Fixture string `required:"" help:"Path to a character/persona/history fixture YAML file." type:"path"`
	Preset  string `required:"" help:"Path to a preset/lorebook YAML file." type:"path"`
	Model   string `help:"Model name, used to pick a token estimator (e.g. gpt-4)." default:""`
	Dialect string `help:"Convert the assembled Plan to this provider's wire format (openai, anthropic, google, mistral, ai21, cohere, xai, text_completion, raw). Prints the raw Plan when empty."`
	Strict  bool   `help:"Abort on the first pipeline warning instead of carrying it onto the Plan."`
}

func (c *AssembleCmd) Run(cli *CLI) error {
	fixture, err := loadFixture(c.Fixture)
	if err != nil {
		return err
	}

	loader, err := presetcfg.NewLoader(c.Preset)
	if err != nil {
		return err
	}
	result, err := loader.Load()
	if err != nil {
		return err
	}
	for _, w := range result.Warnings {
		slog.Warn("tavernctl: unknown preset field ignored", "field", w.Path, "detail", w.Message)
	}

	history := make([]pipeline.Message, 0, len(fixture.History))
	for i, m := range fixture.History {
		history = append(history, m.toMessage(i))
	}

	estimator := tokencount.ForModel(c.Model)

	input := pipeline.BuildInput{
		Character:   fixture.Character.toCharacter(),
		History:     history,
		UserMessage: fixture.UserMessage,
		Preset:      result.Bundle.Preset,
		LoreBooks:   result.Bundle.LoreBooks,
		Estimator:   estimator,
		Strict:      c.Strict,
	}
	if fixture.Persona != nil {
		input.Persona = fixture.Persona.toPersona()
	}

	plan, err := pipeline.Build(input)
	if err != nil {
		return fmt.Errorf("tavernctl: failed to assemble plan: %w", err)
	}

	if c.Dialect == "" {
		return printJSON(plan)
	}

	wire, err := dialect.Convert(dialect.Name(c.Dialect), plan)
	if err != nil {
		return fmt.Errorf("tavernctl: failed to convert plan to %s dialect: %w", c.Dialect, err)
	}
	return printJSON(wire)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("tavernctl: failed to marshal output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

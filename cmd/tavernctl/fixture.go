// Command tavernctl is a smoke-test harness for the Prompt Assembly core:
// it loads a character, persona, chat history, preset, and lorebook
// fixture from disk, runs pipeline.Build, and prints the resulting Plan
// (optionally converted to a provider's wire dialect) to stdout. It is
// not a production server — this module never dials a model endpoint
// itself.
package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tavernkit/core/pkg/lore"
	"github.com/tavernkit/core/pkg/pipeline"
	"github.com/tavernkit/core/pkg/prompt"
)

// characterDoc mirrors pipeline.Character for YAML fixture files.
type characterDoc struct {
	Name                    string   `yaml:"name"`
	Description             string   `yaml:"description"`
	Personality             string   `yaml:"personality"`
	Scenario                string   `yaml:"scenario"`
	SystemPrompt            string   `yaml:"system_prompt"`
	PostHistoryInstructions string   `yaml:"post_history_instructions"`
	MesExample              string   `yaml:"mes_example"`
	FirstMes                string   `yaml:"first_mes"`
	AlternateGreetings      []string `yaml:"alternate_greetings"`
	CreatorNotes            string   `yaml:"creator_notes"`
	CharacterVersion        string   `yaml:"character_version"`

	DepthPrompt *depthPromptDoc `yaml:"depth_prompt"`
	Book        *lorebookInline `yaml:"book"`
}

type depthPromptDoc struct {
	Prompt string `yaml:"prompt"`
	Depth  int    `yaml:"depth"`
	Role   string `yaml:"role"`
}

// lorebookInline is the character-embedded book form: a subset of
// presetcfg.LoreBookDoc's shape with no source field (toBook always sets
// SourceCharacter), whose entries carry no automation_id, outlet_name or
// character_filter_names.
type lorebookInline struct {
	Name              string            `yaml:"name"`
	ScanDepth         int               `yaml:"scan_depth"`
	TokenBudget       int               `yaml:"token_budget"`
	RecursiveScanning bool              `yaml:"recursive_scanning"`
	Entries           []loreEntryInline `yaml:"entries"`
}

type loreEntryInline struct {
	UID             string   `yaml:"uid"`
	PrimaryKeys     []string `yaml:"primary_keys"`
	SecondaryKeys   []string `yaml:"secondary_keys"`
	Logic           string   `yaml:"logic"`
	Constant        bool     `yaml:"constant"`
	Depth           int      `yaml:"depth"`
	ScanDepth       int      `yaml:"scan_depth"`
	Position        string   `yaml:"position"`
	Role            string   `yaml:"role"`
	InsertionOrder  int      `yaml:"insertion_order"`
	Probability     int      `yaml:"probability"`
	Sticky          int      `yaml:"sticky"`
	Cooldown        int      `yaml:"cooldown"`
	Delay           int      `yaml:"delay"`
	CaseSensitive   bool     `yaml:"case_sensitive"`
	MatchWholeWords bool     `yaml:"match_whole_words"`
	Content         string   `yaml:"content"`
}

func (d loreEntryInline) toEntry() *lore.Entry {
	return &lore.Entry{
		UID:             d.UID,
		PrimaryKeys:     d.PrimaryKeys,
		SecondaryKeys:   d.SecondaryKeys,
		Logic:           lore.KeyLogic(d.Logic),
		Constant:        d.Constant,
		Depth:           d.Depth,
		ScanDepth:       d.ScanDepth,
		Position:        lore.Position(d.Position),
		Role:            d.Role,
		InsertionOrder:  d.InsertionOrder,
		Probability:     d.Probability,
		Sticky:          d.Sticky,
		Cooldown:        d.Cooldown,
		Delay:           d.Delay,
		CaseSensitive:   d.CaseSensitive,
		MatchWholeWords: d.MatchWholeWords,
		Content:         d.Content,
	}
}

func (d lorebookInline) toBook() *lore.Book {
	entries := make([]*lore.Entry, 0, len(d.Entries))
	for _, e := range d.Entries {
		entries = append(entries, e.toEntry())
	}
	return &lore.Book{
		Name:              d.Name,
		ScanDepth:         d.ScanDepth,
		TokenBudget:       d.TokenBudget,
		RecursiveScanning: d.RecursiveScanning,
		Source:            lore.SourceCharacter,
		Entries:           entries,
	}
}

func (d characterDoc) toCharacter() *pipeline.Character {
	c := &pipeline.Character{
		Name:                    d.Name,
		Description:             d.Description,
		Personality:             d.Personality,
		Scenario:                d.Scenario,
		SystemPrompt:            d.SystemPrompt,
		PostHistoryInstructions: d.PostHistoryInstructions,
		MesExample:              d.MesExample,
		FirstMes:                d.FirstMes,
		AlternateGreetings:      d.AlternateGreetings,
		CreatorNotes:            d.CreatorNotes,
		CharacterVersion:        d.CharacterVersion,
	}
	if d.DepthPrompt != nil {
		c.DepthPrompt = &pipeline.DepthPrompt{
			Prompt: d.DepthPrompt.Prompt,
			Depth:  d.DepthPrompt.Depth,
			Role:   prompt.Role(d.DepthPrompt.Role),
		}
	}
	if d.Book != nil {
		c.Book = d.Book.toBook()
	}
	return c
}

// personaDoc mirrors pipeline.Persona.
type personaDoc struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

func (d personaDoc) toPersona() *pipeline.Persona {
	return &pipeline.Persona{Name: d.Name, Description: d.Description}
}

// messageDoc mirrors pipeline.Message, one chat history entry.
type messageDoc struct {
	Role               string `yaml:"role"`
	Content            string `yaml:"content"`
	Name               string `yaml:"name"`
	ExcludedFromPrompt bool   `yaml:"excluded_from_prompt"`
}

func (d messageDoc) toMessage(seq int) pipeline.Message {
	return pipeline.Message{
		Role:               prompt.Role(d.Role),
		Content:            d.Content,
		Name:               d.Name,
		ExcludedFromPrompt: d.ExcludedFromPrompt,
		Seq:                seq,
	}
}

// fixtureDoc is the single file cmd/tavernctl's assemble command reads:
// a character, optional persona, optional chat history, and the user's
// latest message. The Preset and any standalone LoreBooks load
// separately via presetcfg, since that format is shared with a
// long-running scheduler process and shouldn't be duplicated here.
type fixtureDoc struct {
	Character   characterDoc `yaml:"character"`
	Persona     *personaDoc  `yaml:"persona"`
	History     []messageDoc `yaml:"history"`
	UserMessage string       `yaml:"user_message"`
}

func loadFixture(path string) (*fixtureDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", path, err)
	}
	var doc fixtureDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}
	return &doc, nil
}

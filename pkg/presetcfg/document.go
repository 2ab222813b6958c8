// Package presetcfg loads a Preset and its LoreBooks from YAML documents on
// disk (Preset/LoreBook/LoreEntry; an unknown preset knob is ignored, not
// a load failure). It follows a parse-then-decode pipeline: decode into a
// typed document, apply defaults, validate, with the decoded bundle pushed
// to a caller callback on file change via an fsnotify-backed watch.
package presetcfg

import (
	"github.com/tavernkit/core/pkg/lore"
	"github.com/tavernkit/core/pkg/pipeline"
	"github.com/tavernkit/core/pkg/prompt"
)

// PromptEntryDoc mirrors pipeline.PromptEntry for YAML decoding.
type PromptEntryDoc struct {
	ID              string   `yaml:"id"`
	Name            string   `yaml:"name"`
	Enabled         bool     `yaml:"enabled"`
	Pinned          bool     `yaml:"pinned"`
	Role            string   `yaml:"role"`
	Position        string   `yaml:"position"`
	Depth           int      `yaml:"depth"`
	Order           int      `yaml:"order"`
	Priority        int      `yaml:"priority"`
	Content         string   `yaml:"content"`
	Triggers        []string `yaml:"triggers"`
	ForbidOverrides bool     `yaml:"forbid_overrides"`
	Condition       string   `yaml:"condition"`
}

func (d PromptEntryDoc) toPromptEntry() pipeline.PromptEntry {
	return pipeline.PromptEntry{
		ID:              d.ID,
		Name:            d.Name,
		Enabled:         d.Enabled,
		Pinned:          d.Pinned,
		Role:            prompt.Role(d.Role),
		Position:        pipeline.PromptEntryPosition(d.Position),
		Depth:           d.Depth,
		Order:           d.Order,
		Priority:        d.Priority,
		Content:         d.Content,
		Triggers:        d.Triggers,
		ForbidOverrides: d.ForbidOverrides,
		Condition:       d.Condition,
	}
}

// PresetDoc is the on-disk YAML shape of a Preset (Preset).
type PresetDoc struct {
	Name string `yaml:"name"`

	MainPrompt              string `yaml:"main_prompt"`
	PostHistoryInstructions string `yaml:"post_history_instructions"`
	PersonalityFormat       string `yaml:"personality_format"`
	ScenarioFormat          string `yaml:"scenario_format"`
	NewChatPrompt           string `yaml:"new_chat_prompt"`
	NewGroupChatPrompt      string `yaml:"new_group_chat_prompt"`
	NewExampleChat          string `yaml:"new_example_chat"`
	ContinueNudgePrompt     string `yaml:"continue_nudge_prompt"`
	ContinuePostfix         string `yaml:"continue_postfix"`
	GroupNudgePrompt        string `yaml:"group_nudge_prompt"`
	WIFormat                string `yaml:"wi_format"`
	AuthorsNote             string `yaml:"authors_note"`
	AuthorsNotePosition     string `yaml:"authors_note_position"`
	AuthorsNoteDepth        int    `yaml:"authors_note_depth"`
	AuthorsNoteRole         string `yaml:"authors_note_role"`
	AuthorsNoteFrequency    int    `yaml:"authors_note_frequency"`
	AuthorsNoteAllowWIScan  bool   `yaml:"authors_note_allow_wi_scan"`
	EnhanceDefinitions      string `yaml:"enhance_definitions"`
	AuxiliaryPrompt         string `yaml:"auxiliary_prompt"`
	ReplaceEmptyMessage     string `yaml:"replace_empty_message"`

	ContextWindowTokens    int    `yaml:"context_window_tokens"`
	ReservedResponseTokens int    `yaml:"reserved_response_tokens"`
	MaxInputTokens         int    `yaml:"max_input_tokens"`
	MessageTokenOverhead   int    `yaml:"message_token_overhead"`
	ExamplesBehavior       string `yaml:"examples_behavior"`

	WorldInfoDepth                  int    `yaml:"world_info_depth"`
	WorldInfoBudget                 int    `yaml:"world_info_budget"`
	WorldInfoMinActivations         int    `yaml:"world_info_min_activations"`
	WorldInfoMinActivationsDepthMax int    `yaml:"world_info_min_activations_depth_max"`
	WorldInfoUseGroupScoring        bool   `yaml:"world_info_use_group_scoring"`
	CharacterLoreInsertionStrategy  string `yaml:"character_lore_insertion_strategy"`
	WorldInfoIncludeNames           bool   `yaml:"world_info_include_names"`

	PreferCharPrompt       bool   `yaml:"prefer_char_prompt"`
	PreferCharInstructions bool   `yaml:"prefer_char_instructions"`
	ContinuePrefill        string `yaml:"continue_prefill"`

	EffectivePromptEntries []PromptEntryDoc `yaml:"effective_prompt_entries"`
}

// ToPreset converts the decoded document into a *pipeline.Preset.
func (d PresetDoc) ToPreset() *pipeline.Preset {
	entries := make([]pipeline.PromptEntry, 0, len(d.EffectivePromptEntries))
	for _, e := range d.EffectivePromptEntries {
		entries = append(entries, e.toPromptEntry())
	}
	return &pipeline.Preset{
		MainPrompt:              d.MainPrompt,
		PostHistoryInstructions: d.PostHistoryInstructions,
		PersonalityFormat:       d.PersonalityFormat,
		ScenarioFormat:          d.ScenarioFormat,
		NewChatPrompt:           d.NewChatPrompt,
		NewGroupChatPrompt:      d.NewGroupChatPrompt,
		NewExampleChat:          d.NewExampleChat,
		ContinueNudgePrompt:     d.ContinueNudgePrompt,
		ContinuePostfix:         d.ContinuePostfix,
		GroupNudgePrompt:        d.GroupNudgePrompt,
		WIFormat:                d.WIFormat,
		AuthorsNote:             d.AuthorsNote,
		AuthorsNotePosition:     lore.Position(d.AuthorsNotePosition),
		AuthorsNoteDepth:        d.AuthorsNoteDepth,
		AuthorsNoteRole:         prompt.Role(d.AuthorsNoteRole),
		AuthorsNoteFrequency:    d.AuthorsNoteFrequency,
		AuthorsNoteAllowWIScan:  d.AuthorsNoteAllowWIScan,
		EnhanceDefinitions:      d.EnhanceDefinitions,
		AuxiliaryPrompt:         d.AuxiliaryPrompt,
		ReplaceEmptyMessage:     d.ReplaceEmptyMessage,

		ContextWindowTokens:    d.ContextWindowTokens,
		ReservedResponseTokens: d.ReservedResponseTokens,
		MaxInputTokens:         d.MaxInputTokens,
		MessageTokenOverhead:   d.MessageTokenOverhead,
		ExamplesBehavior:       prompt.ExamplesBehavior(d.ExamplesBehavior),

		WorldInfoDepth:                  d.WorldInfoDepth,
		WorldInfoBudget:                 d.WorldInfoBudget,
		WorldInfoMinActivations:         d.WorldInfoMinActivations,
		WorldInfoMinActivationsDepthMax: d.WorldInfoMinActivationsDepthMax,
		WorldInfoUseGroupScoring:        d.WorldInfoUseGroupScoring,
		CharacterLoreInsertionStrategy:  d.CharacterLoreInsertionStrategy,
		WorldInfoIncludeNames:           d.WorldInfoIncludeNames,

		PreferCharPrompt:       d.PreferCharPrompt,
		PreferCharInstructions: d.PreferCharInstructions,
		ContinuePrefill:        d.ContinuePrefill,

		EffectivePromptEntries: entries,
	}
}

// SetDefaults fills the zero-value knobs a usable preset needs, since a
// preset must reach pipeline validation with sane budget numbers already
// in place rather than zeros.
func (d *PresetDoc) SetDefaults() {
	if d.ContextWindowTokens == 0 {
		d.ContextWindowTokens = 8192
	}
	if d.MaxInputTokens == 0 {
		d.MaxInputTokens = d.ContextWindowTokens - d.ReservedResponseTokens
	}
	if d.ExamplesBehavior == "" {
		d.ExamplesBehavior = string(prompt.ExamplesGraduallyPushOut)
	}
	if d.AuthorsNoteRole == "" {
		d.AuthorsNoteRole = string(prompt.RoleSystem)
	}
	if d.AuthorsNoteFrequency == 0 {
		d.AuthorsNoteFrequency = 1
	}
}

// LoreEntryDoc mirrors lore.Entry for YAML decoding.
type LoreEntryDoc struct {
	UID                  string   `yaml:"uid"`
	PrimaryKeys          []string `yaml:"primary_keys"`
	SecondaryKeys        []string `yaml:"secondary_keys"`
	Logic                string   `yaml:"logic"`
	Constant             bool     `yaml:"constant"`
	Depth                int      `yaml:"depth"`
	ScanDepth            int      `yaml:"scan_depth"`
	Position             string   `yaml:"position"`
	Role                 string   `yaml:"role"`
	InsertionOrder       int      `yaml:"insertion_order"`
	Probability          int      `yaml:"probability"`
	Sticky               int      `yaml:"sticky"`
	Cooldown             int      `yaml:"cooldown"`
	Delay                int      `yaml:"delay"`
	CaseSensitive        bool     `yaml:"case_sensitive"`
	MatchWholeWords      bool     `yaml:"match_whole_words"`
	AutomationID         string   `yaml:"automation_id"`
	Content              string   `yaml:"content"`
	OutletName           string   `yaml:"outlet_name"`
	CharacterFilterNames []string `yaml:"character_filter_names"`
}

func (d LoreEntryDoc) toEntry() *lore.Entry {
	return &lore.Entry{
		UID:                  d.UID,
		PrimaryKeys:          d.PrimaryKeys,
		SecondaryKeys:        d.SecondaryKeys,
		Logic:                lore.KeyLogic(d.Logic),
		Constant:             d.Constant,
		Depth:                d.Depth,
		ScanDepth:            d.ScanDepth,
		Position:             lore.Position(d.Position),
		Role:                 d.Role,
		InsertionOrder:       d.InsertionOrder,
		Probability:          d.Probability,
		Sticky:               d.Sticky,
		Cooldown:             d.Cooldown,
		Delay:                d.Delay,
		CaseSensitive:        d.CaseSensitive,
		MatchWholeWords:      d.MatchWholeWords,
		AutomationID:         d.AutomationID,
		Content:              d.Content,
		OutletName:           d.OutletName,
		CharacterFilterNames: d.CharacterFilterNames,
	}
}

// LoreBookDoc mirrors lore.Book for YAML decoding.
type LoreBookDoc struct {
	Name              string         `yaml:"name"`
	ScanDepth         int            `yaml:"scan_depth"`
	TokenBudget       int            `yaml:"token_budget"`
	RecursiveScanning bool           `yaml:"recursive_scanning"`
	Source            string         `yaml:"source"`
	Entries           []LoreEntryDoc `yaml:"entries"`
}

// ToBook converts the decoded document into a *lore.Book.
func (d LoreBookDoc) ToBook() *lore.Book {
	entries := make([]*lore.Entry, 0, len(d.Entries))
	for _, e := range d.Entries {
		entries = append(entries, e.toEntry())
	}
	return &lore.Book{
		Name:              d.Name,
		ScanDepth:         d.ScanDepth,
		TokenBudget:       d.TokenBudget,
		RecursiveScanning: d.RecursiveScanning,
		Source:            lore.Source(d.Source),
		Entries:           entries,
	}
}

// Document is the top-level shape of one preset config file: a single
// preset plus its bundled lore books (Preset + LoreBook).
type Document struct {
	Preset    PresetDoc     `yaml:"preset"`
	LoreBooks []LoreBookDoc `yaml:"lorebooks"`
}

// Bundle is the decoded, ready-to-use result of loading a Document.
type Bundle struct {
	Preset    *pipeline.Preset
	LoreBooks []*lore.Book
}

// ToBundle converts the document into a Bundle.
func (d Document) ToBundle() *Bundle {
	books := make([]*lore.Book, 0, len(d.LoreBooks))
	for _, b := range d.LoreBooks {
		books = append(books, b.ToBook())
	}
	return &Bundle{Preset: d.Preset.ToPreset(), LoreBooks: books}
}

// Package core is a library for assembling LLM chat prompts from
// character cards, personas, presets, and World-Info lore books, and for
// scheduling whose turn it is to speak next in a multi-participant
// conversation.
//
// # Two cores
//
// The Prompt Assembly core (pkg/pipeline, pkg/prompt, pkg/lore,
// pkg/macro, pkg/chatvars, pkg/exampledialog, pkg/dialect,
// pkg/tokencount) turns a Character + Persona + chat history + Preset +
// LoreBook set into an assembled prompt.Plan, trimmed to a token budget
// and convertible to a specific provider's wire format:
//
//	plan, err := pipeline.Build(pipeline.BuildInput{
//	    Character: char,
//	    Persona:   persona,
//	    History:   history,
//	    Preset:    preset,
//	    LoreBooks: []*lore.Book{book},
//	})
//	req, err := dialect.Convert(dialect.OpenAI, plan)
//
// The Turn Scheduler core (pkg/round, pkg/runqueue, pkg/scheduler) is a
// transactional state machine that decides which participant speaks
// next in a round, queues the generation run backing their turn, and
// advances or pauses the round as runs succeed, fail, or get skipped.
//
// # Configuration and instrumentation
//
// Presets and LoreBooks load from YAML via pkg/presetcfg, with optional
// file-watch hot-reload. pkg/schedmetrics exposes Prometheus
// instrumentation for both cores. cmd/tavernctl is a small CLI that
// exercises the Prompt Assembly core against fixture files on disk.
//
// This module never dials a model endpoint itself — it assembles
// prompts and decides turn order; calling an LLM API with the resulting
// wire payload is the caller's responsibility.
package core

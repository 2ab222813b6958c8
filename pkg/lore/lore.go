// Package lore implements the World Info / Lore Engine (C4):
// keyword-triggered entries scanned out of recent messages, selected under
// a token budget, and emitted as at-position groups or at-depth Blocks.
package lore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/tavernkit/core/pkg/chatvars"
	"github.com/tavernkit/core/pkg/tokencount"
)

// KeyLogic combines primary and secondary keys for activation.
type KeyLogic string

const (
	LogicAndAny KeyLogic = "and_any"
	LogicAndAll KeyLogic = "and_all"
	LogicOr     KeyLogic = "or"
	LogicNot    KeyLogic = "not"
)

// Position is where an activated entry's content is inserted.
type Position string

const (
	PositionBeforeCharDefs Position = "before_char_defs"
	PositionAfterCharDefs  Position = "after_char_defs"
	PositionTopAN          Position = "top_of_an"
	PositionBottomAN       Position = "bottom_of_an"
	PositionBeforeExamples Position = "before_example_messages"
	PositionAfterExamples  Position = "after_example_messages"
	PositionAtDepth        Position = "at_depth"
)

// Source ranks a LoreBook's precedence for dedup collapsing: global > chat
// > persona > character.
type Source string

const (
	SourceGlobal    Source = "global"
	SourceChat      Source = "chat"
	SourcePersona   Source = "persona"
	SourceCharacter Source = "character"
)

var sourceRank = map[Source]int{
	SourceGlobal:    4,
	SourceChat:      3,
	SourcePersona:   2,
	SourceCharacter: 1,
}

// Entry is a single keyword-triggered lore entry (LoreEntry).
type Entry struct {
	UID             string
	PrimaryKeys     []string
	SecondaryKeys   []string
	Logic           KeyLogic
	Constant        bool
	Depth           int
	ScanDepth       int // 0 = inherit book's ScanDepth
	Position        Position
	Role            string
	InsertionOrder  int
	Probability     int // 0-100; 100 = always once other gates pass
	Sticky          int // turns the entry stays active once triggered
	Cooldown        int // turns before the entry can retrigger
	Delay           int // turns that must elapse before this entry can ever trigger
	CaseSensitive   bool
	MatchWholeWords bool
	AutomationID    string
	Content         string
	OutletName      string

	// character-scope activation flags ("character-scope
	// flags match scan_context fields")
	CharacterFilterNames []string
}

// Book is a World Info / lore book (LoreBook).
type Book struct {
	Name              string
	ScanDepth         int
	TokenBudget       int
	RecursiveScanning bool
	Source            Source
	Entries           []*Entry
}

// signature computes the canonical dedup signature ("Lore book
// wire format"): SHA-256 of a deep-sorted, stable-JSON rendering of all
// fields except per-entry source/book_name.
func (b *Book) signature() string {
	type sigEntry = Entry // every Entry field; Entry has no source/book_name
	entries := make([]sigEntry, 0, len(b.Entries))
	for _, e := range b.Entries {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].UID != entries[j].UID {
			return entries[i].UID < entries[j].UID
		}
		return entries[i].InsertionOrder < entries[j].InsertionOrder
	})
	payload := struct {
		ScanDepth         int
		TokenBudget       int
		RecursiveScanning bool
		Entries           []sigEntry
	}{b.ScanDepth, b.TokenBudget, b.RecursiveScanning, entries}
	blob, _ := json.Marshal(payload)
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

// Dedupe collapses books sharing a canonical signature, keeping the one
// with the higher-precedence Source. Idempotent: dedupe(dedupe(x)) ==
// dedupe(x).
func Dedupe(books []*Book) []*Book {
	bySig := make(map[string]*Book)
	order := make([]string, 0, len(books))
	for _, b := range books {
		sig := b.signature()
		existing, ok := bySig[sig]
		if !ok {
			bySig[sig] = b
			order = append(order, sig)
			continue
		}
		if sourceRank[b.Source] > sourceRank[existing.Source] {
			bySig[sig] = b
		}
	}
	out := make([]*Book, 0, len(order))
	for _, sig := range order {
		out = append(out, bySig[sig])
	}
	return out
}

// ScanContext carries identity strings scanned for character-scope
// activation.
type ScanContext struct {
	CharacterName string
	Fields        map[string]string // description, personality, scenario, ...
}

// Options configures one Evaluate call (Inputs).
type Options struct {
	Books                          []*Book
	ScanMessages                   []string // index 0 = most recent
	ScanContext                    ScanContext
	ScanInjects                    []string
	GenerationType                 string
	TokenBudget                    int
	MinActivations                 int
	MinActivationsDepthMax         int
	UseGroupScoring                bool
	CharacterLoreInsertionStrategy string
	ForcedIDs                      map[string]bool
	Estimator                      tokencount.Estimator
	Vars                           chatvars.Store
	Rand                           *rand.Rand
	IncludeNames                   bool
	// CurrentTurn is the caller's monotonic turn counter, used to evaluate
	// sticky/cooldown/delay gates against values the engine previously
	// wrote into Vars ("sticky/cooldown/delay predicates
	// allow it (engine maintains these counters in the variables store)").
	CurrentTurn int
}

// Result is the output of Evaluate (Output).
type Result struct {
	SelectedByPosition map[Position][]*Entry
	Outlets            map[string]string
	DroppedUIDs        []string
	Warnings           []string
}

const maxRecursionIterations = 5

// Evaluate runs the full lore activation + selection pipeline.
func Evaluate(opts Options) *Result {
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(1))
	}
	if opts.Estimator == nil {
		opts.Estimator = tokencount.WhitespaceHeuristic
	}

	books := Dedupe(opts.Books)
	result := &Result{
		SelectedByPosition: make(map[Position][]*Entry),
		Outlets:            make(map[string]string),
	}

	scanBuffer := append([]string(nil), opts.ScanMessages...)
	scanBuffer = append(scanBuffer, opts.ScanInjects...)

	activated := map[string]*Entry{}
	allEntries := map[string]*Entry{}
	for _, b := range books {
		for _, e := range b.Entries {
			allEntries[e.UID] = e
		}
	}

	activate := func(e *Entry, book *Book, buffer []string) bool {
		if _, ok := activated[e.UID]; ok {
			return false
		}
		if e.Constant || opts.ForcedIDs[e.UID] {
			activated[e.UID] = e
			return true
		}
		if matchesCharacterScope(e, opts.ScanContext) {
			activated[e.UID] = e
			return true
		}
		if isSticky(e, opts.Vars, opts.CurrentTurn) {
			activated[e.UID] = e
			return true
		}
		if !delayElapsed(e, opts.Vars, opts.CurrentTurn) || onCooldown(e, opts.Vars, opts.CurrentTurn) {
			return false
		}
		if matchesKeys(e, book, buffer) {
			if !rollProbability(e, opts.Rand) {
				return false
			}
			activated[e.UID] = e
			recordActivation(e, opts.Vars, opts.CurrentTurn)
			return true
		}
		return false
	}

	for _, b := range books {
		for _, e := range b.Entries {
			activate(e, b, scanBuffer)
		}
	}

	// Recursive scanning: activated entries' content rejoins the scan
	// buffer and we re-scan to a bounded fixpoint.
	for iter := 0; iter < maxRecursionIterations; iter++ {
		changed := false
		additions := []string{}
		for _, b := range books {
			if !b.RecursiveScanning {
				continue
			}
			for _, e := range b.Entries {
				if _, ok := activated[e.UID]; ok {
					additions = append(additions, e.Content)
				}
			}
		}
		if len(additions) == 0 {
			break
		}
		nextBuffer := append(append([]string(nil), scanBuffer...), additions...)
		for _, b := range books {
			for _, e := range b.Entries {
				if activate(e, b, nextBuffer) {
					changed = true
				}
			}
		}
		scanBuffer = nextBuffer
		if !changed {
			break
		}
	}

	// Min-activations floor.
	if opts.MinActivations > 0 && len(activated) < opts.MinActivations {
		candidates := make([]*Entry, 0)
		for _, e := range allEntries {
			if _, ok := activated[e.UID]; !ok {
				if e.Depth <= opts.MinActivationsDepthMax || opts.MinActivationsDepthMax == 0 {
					candidates = append(candidates, e)
				}
			}
		}
		sort.Slice(candidates, func(i, j int) bool {
			return groupScore(candidates[i]) > groupScore(candidates[j])
		})
		for _, e := range candidates {
			if len(activated) >= opts.MinActivations {
				break
			}
			activated[e.UID] = e
		}
	}

	ordered := make([]*Entry, 0, len(activated))
	for _, e := range activated {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Constant != b.Constant {
			return a.Constant // constants first
		}
		if a.InsertionOrder != b.InsertionOrder {
			return a.InsertionOrder < b.InsertionOrder
		}
		return a.UID < b.UID
	})

	budget := opts.TokenBudget
	cumulative := 0
	for _, e := range ordered {
		tokens := opts.Estimator.Estimate(e.Content)
		if cumulative+tokens > budget {
			result.DroppedUIDs = append(result.DroppedUIDs, e.UID)
			continue
		}
		cumulative += tokens
		result.SelectedByPosition[e.Position] = append(result.SelectedByPosition[e.Position], e)
		if e.OutletName != "" {
			if existing, ok := result.Outlets[e.OutletName]; ok {
				result.Outlets[e.OutletName] = existing + "\n" + e.Content
			} else {
				result.Outlets[e.OutletName] = e.Content
			}
		}
	}

	return result
}

func groupScore(e *Entry) int {
	score := e.InsertionOrder
	if e.Constant {
		score += 1000
	}
	return score
}

func matchesCharacterScope(e *Entry, ctx ScanContext) bool {
	if len(e.CharacterFilterNames) == 0 {
		return false
	}
	for _, name := range e.CharacterFilterNames {
		if strings.EqualFold(name, ctx.CharacterName) {
			return true
		}
	}
	return false
}

// isSticky reports whether e is still within its sticky window from a
// previous activation, bypassing key matching entirely while active.
func isSticky(e *Entry, vars chatvars.Store, currentTurn int) bool {
	if vars == nil || e.Sticky <= 0 {
		return false
	}
	until, ok := readTurn(vars, loreKey(e.UID, "sticky_until"))
	return ok && currentTurn <= until
}

// onCooldown reports whether e triggered too recently to retrigger.
func onCooldown(e *Entry, vars chatvars.Store, currentTurn int) bool {
	if vars == nil || e.Cooldown <= 0 {
		return false
	}
	until, ok := readTurn(vars, loreKey(e.UID, "cooldown_until"))
	return ok && currentTurn <= until
}

// delayElapsed reports whether e has been in scope long enough to trigger
// for the first time. The engine stamps "first_seen" the first time it
// evaluates an entry; Delay counts turns from that stamp.
func delayElapsed(e *Entry, vars chatvars.Store, currentTurn int) bool {
	if vars == nil || e.Delay <= 0 {
		return true
	}
	firstSeen, ok := readTurn(vars, loreKey(e.UID, "first_seen"))
	if !ok {
		vars.Set(loreKey(e.UID, "first_seen"), strconv.Itoa(currentTurn))
		return false
	}
	return currentTurn-firstSeen >= e.Delay
}

// recordActivation stamps the sticky/cooldown windows after e fires via a
// key match (constant/forced/character-scope activations bypass these
// gates entirely and never record state).
func recordActivation(e *Entry, vars chatvars.Store, currentTurn int) {
	if vars == nil {
		return
	}
	if e.Sticky > 0 {
		vars.Set(loreKey(e.UID, "sticky_until"), strconv.Itoa(currentTurn+e.Sticky))
	}
	if e.Cooldown > 0 {
		vars.Set(loreKey(e.UID, "cooldown_until"), strconv.Itoa(currentTurn+e.Cooldown))
	}
}

func readTurn(vars chatvars.Store, key string) (int, bool) {
	s, ok := vars.Get(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func loreKey(uid, field string) string {
	return "lore." + uid + "." + field
}

func rollProbability(e *Entry, r *rand.Rand) bool {
	if e.Probability <= 0 {
		return e.Probability == 0 // 0 historically means "not configured" => always pass
	}
	if e.Probability >= 100 {
		return true
	}
	return r.Intn(100) < e.Probability
}

func matchesKeys(e *Entry, book *Book, buffer []string) bool {
	depth := e.ScanDepth
	if depth <= 0 {
		depth = book.ScanDepth
	}
	if depth <= 0 || depth > len(buffer) {
		depth = len(buffer)
	}
	window := strings.Join(buffer[:depth], "\n")
	if !e.CaseSensitive {
		window = strings.ToLower(window)
	}

	matchKey := func(key string) bool {
		k := key
		if !e.CaseSensitive {
			k = strings.ToLower(k)
		}
		if e.MatchWholeWords {
			return containsWholeWord(window, k)
		}
		return strings.Contains(window, k)
	}

	primaryHit := anyMatch(e.PrimaryKeys, matchKey)

	switch e.Logic {
	case LogicNot:
		return !primaryHit
	case LogicAndAll:
		return primaryHit && allMatch(e.SecondaryKeys, matchKey)
	case LogicAndAny:
		return primaryHit && (len(e.SecondaryKeys) == 0 || anyMatch(e.SecondaryKeys, matchKey))
	default: // LogicOr, or unset
		return primaryHit || anyMatch(e.SecondaryKeys, matchKey)
	}
}

func anyMatch(keys []string, match func(string) bool) bool {
	for _, k := range keys {
		if match(k) {
			return true
		}
	}
	return false
}

func allMatch(keys []string, match func(string) bool) bool {
	if len(keys) == 0 {
		return true
	}
	for _, k := range keys {
		if !match(k) {
			return false
		}
	}
	return true
}

func containsWholeWord(haystack, word string) bool {
	if word == "" {
		return false
	}
	idx := 0
	for {
		pos := strings.Index(haystack[idx:], word)
		if pos == -1 {
			return false
		}
		pos += idx
		before := pos == 0 || !isWordChar(rune(haystack[pos-1]))
		after := pos+len(word) >= len(haystack) || !isWordChar(rune(haystack[pos+len(word)]))
		if before && after {
			return true
		}
		idx = pos + 1
	}
}

func isWordChar(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

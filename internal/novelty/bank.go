package novelty

import (
	"fmt"
	"hash/fnv"
)

// BankEntry is one deterministic line in a speaker's content bank:
// a template incident or punchline tagged for avoidance bookkeeping.
type BankEntry struct {
	ID       string
	Category string
	Pattern  string
	Stem     string // opening stem, for punchline dedup across entries
	Text     string
}

// Seed builds the stable selection seed for a request: speaker identity,
// the player's input, and two numeric scene fields. Identical requests
// must pick identical entries.
func Seed(speaker, playerInput string, sceneA, sceneB int) string {
	return fmt.Sprintf("%s|%s|%d|%d", speaker, playerInput, sceneA, sceneB)
}

// Pick deterministically selects a bank entry: hash the seed into a start
// index, then probe forward for the first entry whose category, pattern
// and stem are all absent from the speaker's recent style-memory lists.
// If every entry collides, the indexed entry is returned anyway rather
// than blocking (exhausted-avoidance).
func Pick(entries []BankEntry, seed string, mem *StyleMemory) (BankEntry, bool) {
	if len(entries) == 0 {
		return BankEntry{}, false
	}
	start := int(hashSeed(seed) % uint32(len(entries)))
	if mem == nil {
		return entries[start], true
	}
	for i := 0; i < len(entries); i++ {
		entry := entries[(start+i)%len(entries)]
		if mem.seenCategory(entry.Category) || mem.seenPattern(entry.Pattern) ||
			mem.seenStem(entry.Stem) || mem.seenPunchline(entry.ID) {
			continue
		}
		return entry, true
	}
	return entries[start], true
}

func hashSeed(seed string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	return h.Sum32()
}

package novelty

import "strings"

// StyleMemory is a speaker's rolling record of recently used narrative
// material. It lives for the process lifetime; the pipeline controller
// owns all instances and updates them once per completed response.
type StyleMemory struct {
	LastCategory    string
	LastPattern     string
	LastPunchlineID string

	RecentCategories   []string
	RecentPatterns     []string
	RecentPunchlineIDs []string
	RecentStems        []string
	RecentOpenerKeys   []string

	// Extension holds speaker-specific fields (e.g. running gag counters).
	Extension map[string]string
}

// NewStyleMemory creates an empty style memory.
func NewStyleMemory() *StyleMemory {
	return &StyleMemory{Extension: make(map[string]string)}
}

// RememberBank records a bank selection.
func (m *StyleMemory) RememberBank(entry BankEntry, depth int) {
	m.LastCategory = entry.Category
	m.LastPattern = entry.Pattern
	m.LastPunchlineID = entry.ID
	m.RecentCategories = pushRecent(m.RecentCategories, entry.Category, depth)
	m.RecentPatterns = pushRecent(m.RecentPatterns, entry.Pattern, depth)
	m.RecentPunchlineIDs = pushRecent(m.RecentPunchlineIDs, entry.ID, depth)
	m.RecentStems = pushRecent(m.RecentStems, entry.Stem, depth)
}

// SeenStemOpening reports whether text opens with a recently used
// narrative stem. Feeds the memory-pattern repetition signal.
func (m *StyleMemory) SeenStemOpening(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, stem := range m.RecentStems {
		if stem != "" && strings.HasPrefix(lower, stem) {
			return true
		}
	}
	return false
}

// RememberOpener records the opener signature of an accepted reply.
func (m *StyleMemory) RememberOpener(text string, depth int) {
	key := OpenerKey(text)
	if key == "" {
		return
	}
	m.RecentOpenerKeys = pushRecent(m.RecentOpenerKeys, key, depth)
}

// SeenOpener reports whether key matches a recent opener signature.
func (m *StyleMemory) SeenOpener(key string) bool {
	return key != "" && contains(m.RecentOpenerKeys, key)
}

func (m *StyleMemory) seenCategory(v string) bool  { return contains(m.RecentCategories, v) }
func (m *StyleMemory) seenPattern(v string) bool   { return contains(m.RecentPatterns, v) }
func (m *StyleMemory) seenPunchline(v string) bool { return contains(m.RecentPunchlineIDs, v) }
func (m *StyleMemory) seenStem(v string) bool      { return contains(m.RecentStems, v) }

func pushRecent(list []string, v string, depth int) []string {
	if v == "" {
		return list
	}
	list = append(list, v)
	if depth > 0 && len(list) > depth {
		list = list[len(list)-depth:]
	}
	return list
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// RecentRing is the bounded buffer of normalized recent reply text across
// all speakers, used only for cross-speaker echo detection.
type RecentRing struct {
	max   int
	lines []string
}

// NewRecentRing creates a ring holding at most max lines.
func NewRecentRing(max int) *RecentRing {
	return &RecentRing{max: max}
}

// Push appends a line, evicting the oldest when full.
func (r *RecentRing) Push(line string) {
	r.lines = append(r.lines, line)
	if r.max > 0 && len(r.lines) > r.max {
		r.lines = r.lines[len(r.lines)-r.max:]
	}
}

// Snapshot returns a copy of the buffered lines.
func (r *RecentRing) Snapshot() []string {
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// Len returns the number of buffered lines.
func (r *RecentRing) Len() int { return len(r.lines) }

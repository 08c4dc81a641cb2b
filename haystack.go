package angelshark

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ExtSearchACMsEnv names the environment variable listing which job names
// Haystack.Refresh should query.
const ExtSearchACMsEnv = "ANGELSHARKD_EXT_SEARCH_ACMS"

const (
	cmdListExtensionType = "list extension-type"
	cmdListStation       = "list station"
	fieldStationNumber   = "8005ff00"
	fieldStationRoom     = "0031ff00"
)

// Haystack is a process-wide, thread-safe, atomically-swappable directory
// of ACM extensions, built by issuing two well-known OSSI queries against
// every configured ACM and joining their results.
type Haystack struct {
	template *Runner // registered ACMs only; cloned fresh on every refresh

	mu            sync.RWMutex
	entries       [][]string
	lastRefreshed time.Time
	refreshed     bool
}

// NewHaystack returns a Haystack that will refresh against runner's
// registered ACMs. runner's queued inputs (if any) are irrelevant — only
// its ACM registrations are used, via Clone, on each Refresh.
func NewHaystack(runner *Runner) *Haystack {
	return &Haystack{template: runner.Clone()}
}

// SetTemplate replaces the ACM registrations used by future Refresh calls,
// without disturbing the currently-served search entries. Callers reload
// Haystack this way after hot-reloading a login file, rather than
// constructing a new Haystack (which would lose lastRefreshed and force
// every searcher to wait for a fresh Refresh).
func (h *Haystack) SetTemplate(runner *Runner) {
	h.mu.Lock()
	h.template = runner.Clone()
	h.mu.Unlock()
}

// Search returns every entry whose lowercased column concatenation
// contains every (lowercased) needle as a substring. No ranking; source
// order is preserved.
func (h *Haystack) Search(needles []string) ([][]string, error) {
	lowered := make([]string, len(needles))
	for i, n := range needles {
		lowered[i] = strings.ToLower(n)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	var matches [][]string
	for _, entry := range h.entries {
		haystack := strings.ToLower(strings.Join(entry, ""))
		if containsAll(haystack, lowered) {
			matches = append(matches, entry)
		}
	}
	return matches, nil
}

func containsAll(haystack string, needles []string) bool {
	for _, n := range needles {
		if !strings.Contains(haystack, n) {
			return false
		}
	}
	return true
}

// EntryCount returns the number of entries in the current snapshot.
func (h *Haystack) EntryCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// LastRefreshed reports when the haystack was last successfully refreshed.
// ok is false if Refresh has never succeeded.
func (h *Haystack) LastRefreshed() (t time.Time, ok bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastRefreshed, h.refreshed
}

// Refresh rebuilds the haystack from live OSSI queries against every job
// name listed in ExtSearchACMsEnv, then atomically replaces the stored
// entries. Multiple concurrent refreshes are wasteful but not unsafe;
// callers should serialize them externally if that matters.
func (h *Haystack) Refresh() error {
	configured := os.Getenv(ExtSearchACMsEnv)
	if strings.TrimSpace(configured) == "" {
		return fmt.Errorf("%s is not set; cannot refresh haystack", ExtSearchACMsEnv)
	}

	h.mu.RLock()
	runner := h.template.Clone()
	h.mu.RUnlock()
	for _, name := range strings.Fields(configured) {
		runner.QueueInput(name, NewMessage(cmdListExtensionType))
		runner.QueueInput(name, Message{
			Command: cmdListStation,
			Fields:  []string{fieldStationNumber, fieldStationRoom},
		})
	}

	outputs := make(map[string][]Message)
	for result := range runner.Run() {
		if result.Err != nil {
			return fmt.Errorf("failed to run refresh commands on ACM %q: %w", result.Name, result.Err)
		}
		var filtered []Message
		for _, m := range result.Messages {
			if m.Command == "logoff" {
				continue
			}
			if m.Error != "" {
				slog.Default().Warn("ACM reported error during haystack refresh", "acm", result.Name, "command", m.Command, "error", m.Error)
			}
			filtered = append(filtered, m)
		}
		outputs[result.Name] = filtered
	}

	rooms := buildRoomIndex(outputs)
	entries := buildHaystackEntries(outputs, rooms)

	h.mu.Lock()
	h.entries = entries
	h.lastRefreshed = time.Now()
	h.refreshed = true
	h.mu.Unlock()

	logRefreshStats(entries)
	return nil
}

// buildRoomIndex maps station number -> room across every "list station"
// reply, skipping rows with fewer than two columns.
func buildRoomIndex(outputs map[string][]Message) map[string]string {
	rooms := make(map[string]string)
	for _, messages := range outputs {
		for _, m := range messages {
			if m.Command != cmdListStation {
				continue
			}
			for _, row := range m.Datas {
				if len(row) < 2 {
					continue
				}
				rooms[row[0]] = row[1]
			}
		}
	}
	return rooms
}

// buildHaystackEntries walks every "list extension-type" row across every
// job and appends the synthesized ACM label and resolved room.
func buildHaystackEntries(outputs map[string][]Message, rooms map[string]string) [][]string {
	var entries [][]string
	for name, messages := range outputs {
		label := "CM" + name
		for _, m := range messages {
			if m.Command != cmdListExtensionType {
				continue
			}
			for _, row := range m.Datas {
				room := ""
				if len(row) > 0 {
					room = rooms[row[0]]
				}
				entry := make([]string, 0, len(row)+2)
				entry = append(entry, row...)
				entry = append(entry, label, room)
				entries = append(entries, entry)
			}
		}
	}
	return entries
}

func logRefreshStats(entries [][]string) {
	const colExtType = 1
	counts := make(map[string]int)
	for _, entry := range entries {
		// The last two columns are always the synthesized ACM label and
		// resolved room (see buildHaystackEntries); everything before that
		// is the raw "list extension-type" row.
		if len(entry) < 2+colExtType+1 {
			continue
		}
		acm := entry[len(entry)-2]
		room := entry[len(entry)-1]
		isStation := entry[colExtType] == "station-user"
		hasRoom := room != ""
		switch {
		case isStation && hasRoom:
			counts[acm+"_stat_room"]++
		case isStation && !hasRoom:
			counts[acm+"_stat_noroom"]++
		default:
			counts[acm+"_other"]++
		}
	}
	slog.Default().Info("haystack refreshed", "total_entries", len(entries), "component", "haystack")
	for stat, count := range counts {
		slog.Default().Debug("haystack refresh stat", "stat", stat, "count", count, "component", "haystack")
	}
}

package angelshark

import (
	"reflect"
	"strconv"
	"sync"
	"testing"
)

func TestHaystackSearchConjunctive(t *testing.T) {
	h := NewHaystack(NewRunner())
	h.entries = [][]string{
		{"12345", "station-user", "CM01", "Rm1"},
		{"12346", "station-user", "CM01", "Rm2"},
		{"99999", "vdn", "CM02", ""},
	}

	matches, err := h.Search([]string{"rm1"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0][0] != "12345" {
		t.Fatalf("got %#v", matches)
	}

	matches, err = h.Search([]string{"STATION", "12345"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0][0] != "12345" {
		t.Fatalf("got %#v", matches)
	}

	matches, err = h.Search([]string{"station"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2: %#v", len(matches), matches)
	}
}

func TestHaystackRefreshRequiresEnvVar(t *testing.T) {
	t.Setenv(ExtSearchACMsEnv, "")
	h := NewHaystack(NewRunner())
	if err := h.Refresh(); err == nil {
		t.Fatal("expected an error when ANGELSHARKD_EXT_SEARCH_ACMS is unset")
	}
}

func TestBuildRoomIndexSkipsShortRows(t *testing.T) {
	outputs := map[string][]Message{
		"01": {{
			Command: cmdListStation,
			Datas:   [][]string{{"12345", "Rm1"}, {"lonely"}},
		}},
	}
	rooms := buildRoomIndex(outputs)
	if rooms["12345"] != "Rm1" {
		t.Errorf("rooms[12345] = %q, want Rm1", rooms["12345"])
	}
	if _, ok := rooms["lonely"]; ok {
		t.Error("a single-column row should not contribute to the room index")
	}
}

func TestBuildHaystackEntries(t *testing.T) {
	outputs := map[string][]Message{
		"01": {
			{Command: cmdListExtensionType, Datas: [][]string{{"12345", "station-user"}}},
			{Command: cmdListStation, Datas: [][]string{{"12345", "Rm1"}}},
		},
	}
	rooms := buildRoomIndex(outputs)
	entries := buildHaystackEntries(outputs, rooms)

	want := [][]string{{"12345", "station-user", "CM01", "Rm1"}}
	if !reflect.DeepEqual(entries, want) {
		t.Fatalf("got %#v, want %#v", entries, want)
	}
}

func TestBuildHaystackEntriesUnresolvedRoomIsEmpty(t *testing.T) {
	outputs := map[string][]Message{
		"02": {
			{Command: cmdListExtensionType, Datas: [][]string{{"99999", "vdn"}}},
		},
	}
	entries := buildHaystackEntries(outputs, map[string]string{})
	want := [][]string{{"99999", "vdn", "CM02", ""}}
	if !reflect.DeepEqual(entries, want) {
		t.Fatalf("got %#v, want %#v", entries, want)
	}
}

// TestHaystackAtomicSwap ensures concurrent searches never observe a
// partially-updated snapshot: every search during a storm of swaps must
// only see entries with the 3-column shape every published snapshot has.
func TestHaystackAtomicSwap(t *testing.T) {
	h := NewHaystack(NewRunner())
	const rounds = 200

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			snapshot := [][]string{{"x", "round", strconv.Itoa(i)}}
			h.mu.Lock()
			h.entries = snapshot
			h.mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			matches, err := h.Search([]string{"round"})
			if err != nil {
				t.Errorf("Search: %v", err)
				return
			}
			for _, m := range matches {
				if len(m) != 3 {
					t.Errorf("torn read: entry %#v has unexpected shape", m)
				}
			}
		}
	}()

	wg.Wait()
}

func TestHaystackSetTemplateReplacesRegistrations(t *testing.T) {
	h := NewHaystack(NewRunner().RegisterAcm("old", Acm{}))
	h.entries = [][]string{{"12345", "station-user", "CMold", ""}}

	h.SetTemplate(NewRunner().RegisterAcm("new", Acm{}))

	if _, ok := h.template.jobs["old"]; ok {
		t.Fatalf("template still has old registration")
	}
	if _, ok := h.template.jobs["new"]; !ok {
		t.Fatalf("template missing new registration")
	}

	// Existing search entries must survive a template swap: a hot-reload
	// shouldn't blank out results until the next Refresh completes.
	matches, err := h.Search([]string{"station"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
}

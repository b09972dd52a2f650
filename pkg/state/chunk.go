package state

// Chunk is the fully compiled, low-data form of a ChunkSpec: requisite
// references have been resolved to chunk IDs and deduplicated, and the
// chunk carries everything the runtime needs without re-consulting the
// compiler (§4.4, §9 "index-addressed table of chunks").
type Chunk struct {
	ID       string
	Module   string
	Function string
	Name     string
	Args     map[string]any

	// Requires/Watches/Prereqs/Uses/Onfails/Onchanges are resolved target
	// chunk IDs, already merged from both directions (direct + *_in) and
	// deduplicated, in first-seen order.
	Requires   []string
	Watches    []string
	Prereqs    []string
	Uses       []string
	Onfails    []string
	Onchanges  []string
	ListenedBy []string // listen targets: chunks that react when this one changes

	OrderDirective Order

	Parallel      bool
	Failhard      bool
	FireEvent     bool
	FireEventTag  string
	ReloadModules bool

	OnlyIf   []string
	Unless   []string
	CheckCmd []string

	Unit            string
	DefinitionOrder int
}

// Key returns the (module, function) doer key used to look up the registry.
func (c *Chunk) Key() string {
	return c.Module + "." + c.Function
}

// LowState is the compiled, ordered program the runtime executes: a
// sequence of chunks plus an index from ID to position for O(1) lookup
// during gating (§4.5).
type LowState struct {
	Chunks []*Chunk

	// index is lazily built by Index(); callers should use Index() rather
	// than constructing it themselves.
	index map[string]int
}

// Index returns (and caches) a chunk-ID -> position map.
func (ls *LowState) Index() map[string]int {
	if ls.index != nil {
		return ls.index
	}
	idx := make(map[string]int, len(ls.Chunks))
	for i, c := range ls.Chunks {
		idx[c.ID] = i
	}
	ls.index = idx
	return idx
}

// ByID returns the chunk with the given ID, or nil.
func (ls *LowState) ByID(id string) *Chunk {
	idx := ls.Index()
	i, ok := idx[id]
	if !ok {
		return nil
	}
	return ls.Chunks[i]
}

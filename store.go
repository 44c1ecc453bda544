package vpk

import (
	"sort"
	"strings"
)

// CasePolicy controls how the sorted entry store compares names once
// optimize has been configured (spec §4.3).
type CasePolicy int

const (
	// CaseSensitive compares file names, directories, and types with
	// ordinal (byte-wise) equality.
	CaseSensitive CasePolicy = iota
	// CaseInsensitiveOrdinal compares file names, directories, and types
	// ignoring ASCII/Unicode case.
	CaseInsensitiveOrdinal
)

// entryStore maps an extension to its ordered sequence of entries. A key is
// never present with an empty sequence; an emptied sequence is removed.
//
// Two lookup modes are supported. Linear mode (the default) scans the
// per-extension sequence and preserves insertion order. Sorted mode is
// enabled once, before any read or add, by calling optimize; it fixes a case
// policy for the store's lifetime and switches lookups to binary search
// using the length-first comparator below.
type entryStore struct {
	byType map[string][]*Entry

	// insertOrder preserves the global add order across every extension,
	// independent of map iteration order. The writer's placement pass
	// flattens entries using this slice (spec §4.8).
	insertOrder []*Entry

	sorted      bool
	casePolicy  CasePolicy
	anyIngested bool
}

func newEntryStore() *entryStore {
	return &entryStore{byType: make(map[string][]*Entry)}
}

// optimize switches the store to sorted/binary-search mode with the given
// case policy. It must be called before any entry has been added or read;
// calling it afterward is a programming error (spec §4.3, §7 InvalidState).
func (s *entryStore) optimize(policy CasePolicy) error {
	if s.anyIngested {
		return newErr(KindInvalidState, "optimize called after entries were already ingested")
	}
	s.sorted = true
	s.casePolicy = policy
	return nil
}

// add appends e to its extension's sequence. It does not sort: in sorted
// mode the sequence is put in comparator order by finalize, which the
// Archive calls after reading a tree and after every Add. Linear mode
// preserves insertion order directly.
func (s *entryStore) add(e *Entry) {
	s.anyIngested = true
	s.byType[e.Type] = append(s.byType[e.Type], e)
	s.insertOrder = append(s.insertOrder, e)
}

// finalize sorts every extension's sequence once, after bulk ingestion from
// a stream. Only meaningful in sorted mode; a no-op otherwise.
func (s *entryStore) finalize() {
	if !s.sorted {
		return
	}
	for _, seq := range s.byType {
		slice := seq
		sort.Slice(slice, func(i, j int) bool {
			return s.less(slice[i], slice[j])
		})
	}
}

// less implements the length-first total order (spec §4.3): file-name
// length, then directory length, then file-name, then directory, under the
// store's case policy. This is a deliberate optimization preserved exactly
// so an archive sorted by one VPK implementation can be binary-searched by
// another.
func (s *entryStore) less(a, b *Entry) bool {
	if len(a.FileName) != len(b.FileName) {
		return len(a.FileName) < len(b.FileName)
	}
	if len(a.Directory) != len(b.Directory) {
		return len(a.Directory) < len(b.Directory)
	}
	if c := s.compare(a.FileName, b.FileName); c != 0 {
		return c < 0
	}
	return s.compare(a.Directory, b.Directory) < 0
}

func (s *entryStore) compare(a, b string) int {
	if s.casePolicy == CaseInsensitiveOrdinal {
		a, b = strings.ToLower(a), strings.ToLower(b)
	}
	return strings.Compare(a, b)
}

func (s *entryStore) equalKey(e *Entry, dir, fileName string) bool {
	if s.sorted && s.casePolicy == CaseInsensitiveOrdinal {
		return strings.EqualFold(e.Directory, dir) && strings.EqualFold(e.FileName, fileName)
	}
	return e.Directory == dir && e.FileName == fileName
}

// find returns the entry matching the normalized (ext, dir, fileName)
// triple, or nil if none matches. An empty path reaches here as
// (noneMarker, noneMarker, "") and matches only an entry stored under that
// key.
func (s *entryStore) find(ext, dir, fileName string) *Entry {
	seq := s.byType[ext]
	if len(seq) == 0 && s.sorted && s.casePolicy == CaseInsensitiveOrdinal {
		for t, candidates := range s.byType {
			if strings.EqualFold(t, ext) {
				seq = candidates
				break
			}
		}
	}
	if len(seq) == 0 {
		return nil
	}

	if !s.sorted {
		for _, e := range seq {
			if s.equalKey(e, dir, fileName) {
				return e
			}
		}
		return nil
	}

	probe := &Entry{FileName: fileName, Directory: dir}
	i := sort.Search(len(seq), func(i int) bool {
		return !s.less(seq[i], probe)
	})
	// Binary search only orders by the comparator; multiple entries can
	// share the comparator key without being equal under equalKey (they
	// wouldn't in a well-formed archive, since (dir, fileName, ext) is a
	// unique key, but scan forward defensively past the landing point).
	for ; i < len(seq); i++ {
		if len(seq[i].FileName) != len(fileName) || len(seq[i].Directory) != len(dir) {
			break
		}
		if s.equalKey(seq[i], dir, fileName) {
			return seq[i]
		}
	}
	return nil
}

// remove deletes the entry matching (ext, dir, fileName), if present,
// removing the extension key entirely once its sequence is emptied (spec
// §3 invariant: "a key never has an empty sequence"). Reports whether an
// entry was removed.
func (s *entryStore) remove(ext, dir, fileName string) bool {
	seq := s.byType[ext]
	for i, e := range seq {
		if s.equalKey(e, dir, fileName) {
			seq = append(seq[:i], seq[i+1:]...)
			if len(seq) == 0 {
				delete(s.byType, ext)
			} else {
				s.byType[ext] = seq
			}
			for j, o := range s.insertOrder {
				if o == e {
					s.insertOrder = append(s.insertOrder[:j], s.insertOrder[j+1:]...)
					break
				}
			}
			return true
		}
	}
	return false
}

// orderedAll flattens every entry in global insertion order, independent of
// which extension it belongs to (spec §4.8 placement input).
func (s *entryStore) orderedAll() []*Entry {
	out := make([]*Entry, len(s.insertOrder))
	copy(out, s.insertOrder)
	return out
}

// entries returns the sequence for a single extension, in its current
// iteration order (insertion order in linear mode, comparator order in
// sorted mode).
func (s *entryStore) entries(ext string) []*Entry {
	return s.byType[ext]
}

// walk invokes fn for every entry across every extension, extension order
// unspecified but each extension's internal order preserved. Stops early if
// fn returns false.
func (s *entryStore) walk(fn func(*Entry) bool) {
	for _, seq := range s.byType {
		for _, e := range seq {
			if !fn(e) {
				return
			}
		}
	}
}

// all flattens every entry across every extension, preserving each
// extension's internal order. Extension iteration order is not guaranteed
// stable across calls (map iteration); callers needing deterministic
// cross-extension order sort the result themselves (VerifyFileCRCs does).
// The writer uses orderedAll instead.
func (s *entryStore) all() []*Entry {
	total := 0
	for _, seq := range s.byType {
		total += len(seq)
	}
	out := make([]*Entry, 0, total)
	for _, seq := range s.byType {
		out = append(out, seq...)
	}
	return out
}

func (s *entryStore) count() int {
	n := 0
	for _, seq := range s.byType {
		n += len(seq)
	}
	return n
}

package textindex

import (
	"fmt"
	"sort"

	"github.com/bits-and-blooms/bitset"
)

// FilterMode selects how a multi-token query combines its tokens' posting
// lists, per spec.md §4.5's "three filter modes".
type FilterMode int

const (
	AllTokens FilterMode = iota
	AnyTokens
	Phrase
)

// posting is one token's posting list: the sorted point ids it occurs in,
// plus optional per-point token positions for phrase queries.
type posting struct {
	points    []uint32          // sorted ascending
	positions map[uint32][]uint32 // point id -> sorted token positions; nil if non-positional
}

// Index is the in-memory TextInvertedIndex: a vocabulary, one posting list
// per token, the shared Counts array, and a per-point deletion bitmap.
// Unlike C2/C3/C4 it is built and held in memory rather than mmap-backed —
// spec.md §4.5 does not mandate a specific postings wire encoding the way
// §4.2/§4.6 do, so the postings payload here is the in-memory
// representation; only the Counts file has a mandated byte layout.
type Index struct {
	vocab    map[string]uint32
	postings []*posting
	counts   *Counts
	deleted  *bitset.BitSet
	active   uint64
}

// New builds an empty Index (no vocabulary, no postings; tokens are
// registered with AddToken), sharing the given Counts store for
// token-count bookkeeping.
func New(counts *Counts) *Index {
	return &Index{
		vocab:   make(map[string]uint32),
		counts:  counts,
		deleted: bitset.New(uint(counts.Len())),
		active:  uint64(counts.Len()),
	}
}

// AddToken registers a token's postings, assigning it the next token id.
// positions may be nil for a non-positional index (Phrase queries will
// then always return an empty sequence, per spec.md §4.5).
func (ix *Index) AddToken(token string, points []uint32, positions map[uint32][]uint32) uint32 {
	sorted := append([]uint32(nil), points...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	id := uint32(len(ix.postings))
	ix.vocab[token] = id
	ix.postings = append(ix.postings, &posting{points: sorted, positions: positions})

	return id
}

// TokenID looks up a token's id.
func (ix *Index) TokenID(token string) (uint32, bool) {
	id, ok := ix.vocab[token]

	return id, ok
}

// Query returns the sorted, deletion-filtered point id sequence matching
// tokens under mode.
func (ix *Index) Query(mode FilterMode, tokens []string) ([]uint32, error) {
	ids := make([]uint32, 0, len(tokens))
	for _, t := range tokens {
		id, ok := ix.TokenID(t)
		if !ok {
			return nil, nil // unknown token: no matches, not an error
		}
		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	switch mode {
	case AllTokens:
		return ix.filterDeleted(intersect(ix.postingLists(ids))), nil
	case AnyTokens:
		return ix.filterDeleted(union(ix.postingLists(ids))), nil
	case Phrase:
		return ix.filterDeleted(ix.phraseMatch(ids)), nil
	default:
		return nil, fmt.Errorf("textindex: unknown filter mode %v", mode)
	}
}

func (ix *Index) postingLists(ids []uint32) [][]uint32 {
	lists := make([][]uint32, len(ids))
	for i, id := range ids {
		lists[i] = ix.postings[id].points
	}

	return lists
}

func (ix *Index) filterDeleted(points []uint32) []uint32 {
	out := points[:0]
	for _, p := range points {
		if !ix.IsDeleted(p) {
			out = append(out, p)
		}
	}

	return out
}

// phraseMatch returns points where every token in ids occurs at
// consecutive positions in order. Returns an empty sequence if any
// involved token's postings are non-positional, per spec.md §4.5
// ("non-positional postings return an empty sequence for phrase
// queries").
func (ix *Index) phraseMatch(ids []uint32) []uint32 {
	for _, id := range ids {
		if ix.postings[id].positions == nil {
			return nil
		}
	}

	candidates := intersect(ix.postingLists(ids))

	var out []uint32
	for _, p := range candidates {
		if phraseOccursAt(ix.postings, ids, p) {
			out = append(out, p)
		}
	}

	return out
}

func phraseOccursAt(postings []*posting, ids []uint32, point uint32) bool {
	firstPositions := postings[ids[0]].positions[point]

	for _, start := range firstPositions {
		matched := true
		for k := 1; k < len(ids); k++ {
			if !containsSorted(postings[ids[k]].positions[point], start+uint32(k)) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}

	return false
}

func containsSorted(s []uint32, v uint32) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= v })

	return i < len(s) && s[i] == v
}

// intersect returns the sorted intersection of several sorted id lists.
func intersect(lists [][]uint32) []uint32 {
	if len(lists) == 0 {
		return nil
	}

	out := append([]uint32(nil), lists[0]...)
	for _, l := range lists[1:] {
		out = intersectTwo(out, l)
		if len(out) == 0 {
			break
		}
	}

	return out
}

func intersectTwo(a, b []uint32) []uint32 {
	var out []uint32
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}

	return out
}

// union returns the sorted, deduplicated union of several sorted id lists.
func union(lists [][]uint32) []uint32 {
	seen := make(map[uint32]struct{})
	var out []uint32
	for _, l := range lists {
		for _, v := range l {
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				out = append(out, v)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

// IsDeleted reports whether pointID has been removed.
func (ix *Index) IsDeleted(pointID uint32) bool { return ix.deleted.Test(uint(pointID)) }

// Remove sets pointID's deletion bit, zeroes its count slot, and
// decrements the active-point counter, per spec.md §4.5's mutation
// contract. It returns true iff the state transitioned.
func (ix *Index) Remove(pointID uint32) bool {
	if ix.deleted.Test(uint(pointID)) {
		return false
	}

	ix.deleted.Set(uint(pointID))
	ix.counts.Zero(pointID)
	ix.active--

	return true
}

// ActiveCount returns the number of non-deleted points.
func (ix *Index) ActiveCount() uint64 { return ix.active }

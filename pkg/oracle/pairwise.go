package oracle

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"
)

// Preference is the outcome of a pairwise comparison.
type Preference string

const (
	PreferA Preference = "A"
	PreferB Preference = "B"
	Tie     Preference = "tie"
)

// Scores at or below tieLow favour the first presented response, at or
// above tieHigh the second; anything between is a tie.
const (
	tieLow  = 40.0
	tieHigh = 60.0
)

// SeedRecord captures how one pairwise comparison was presented so it can be
// replayed.
type SeedRecord struct {
	Call    string     `json:"call"`
	Seed    uint64     `json:"seed"`
	Swapped bool       `json:"swapped"`
	Winner  Preference `json:"winner"`
}

// Comparison is the result of Compare.
type Comparison struct {
	Winner  Preference `json:"winner"`
	Verdict Verdict    `json:"verdict"`
	Seed    SeedRecord `json:"seed"`
}

// SeedFor derives a per-call seed from the run's base seed and a call key
// such as task id, dimension and turn.
func SeedFor(base uint64, parts ...string) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], base)
	_, _ = h.Write(buf[:])
	for _, p := range parts {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(p))
	}
	return h.Sum64()
}

// Swapped reports whether the comparison seeded with seed presents B first.
func Swapped(seed uint64) bool {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return rng.IntN(2) == 1
}

// Compare asks j which of a and b better satisfies criterion. Presentation
// order is drawn from seed and recorded in the result.
func Compare(ctx context.Context, j Judge, call string, seed uint64, background, a, b, criterion string) (Comparison, error) {
	swapped := Swapped(seed)
	first, second := a, b
	if swapped {
		first, second = b, a
	}

	var p strings.Builder
	if bg := strings.TrimSpace(background); bg != "" {
		fmt.Fprintf(&p, "%s\n\n", bg)
	}
	fmt.Fprintf(&p, "Compare the two responses below.\n\n**Response 1**:\n%s\n\n**Response 2**:\n%s\n", first, second)
	rubric := fmt.Sprintf("%s Score 0 if Response 1 is clearly better, 100 if Response 2 is clearly better, 50 if they are equally good.", strings.TrimSpace(criterion))

	v, err := j.Judge(ctx, p.String(), rubric)
	if err != nil {
		return Comparison{}, err
	}

	var winner Preference
	switch {
	case v.Score <= tieLow:
		winner = PreferA
	case v.Score >= tieHigh:
		winner = PreferB
	default:
		winner = Tie
	}
	if swapped && winner != Tie {
		if winner == PreferA {
			winner = PreferB
		} else {
			winner = PreferA
		}
	}

	return Comparison{
		Winner:  winner,
		Verdict: v,
		Seed:    SeedRecord{Call: call, Seed: seed, Swapped: swapped, Winner: winner},
	}, nil
}

package engine

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	"github.com/Protocol-Lattice/recall/pkg/memory/model"
)

// fingerprint identifies a memory set without its embedding vectors. Two
// sets with equal fingerprints hold the same memories in the same order.
// The zero value never matches a non-empty set.
type fingerprint struct {
	count int
	sum   uint64
}

func fingerprintOf(memories []model.Memory) fingerprint {
	h := fnv.New64a()
	var buf [8]byte
	putInt := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		_, _ = h.Write(buf[:])
	}
	putString := func(s string) {
		putInt(int64(len(s)))
		_, _ = h.Write([]byte(s))
	}
	putStrings := func(ss []string) {
		putInt(int64(len(ss)))
		for _, s := range ss {
			putString(s)
		}
	}
	for _, m := range memories {
		putString(m.ID)
		putString(m.Summary)
		putInt(int64(m.Importance))
		putInt(m.Sequence)
		putInt(int64(len(m.MessageIDs)))
		for _, id := range m.MessageIDs {
			putInt(int64(id))
		}
		putStrings(m.CharactersInvolved)
		putStrings(m.Witnesses)
		putStrings(m.Tags)
		if m.IsSecret {
			putInt(1)
		} else {
			putInt(0)
		}
		putInt(int64(len(m.Embedding)))
		if len(m.Embedding) > 0 {
			putInt(int64(math.Float32bits(m.Embedding[0])))
		}
	}
	return fingerprint{count: len(memories), sum: h.Sum64()}
}

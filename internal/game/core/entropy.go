package core

import "crypto/sha256"

// entropyStep is the one-way mixing step applied between consecutive draws
// so they are not correlated. Shift constants follow the original chain.
func entropyStep(s uint64) uint64 {
	s ^= s << 7
	s ^= s >> 9
	s ^= s << 8
	if s == 0 {
		s = 0x9e3779b97f4a7c15
	}
	return s
}

// accountSeed derives the stable per-account key used to seed airdrop
// streams. Pure: the same account always yields the same seed.
func accountSeed(account AccountID) uint64 {
	h := sha256.Sum256([]byte(account))
	var s uint64
	for i := 0; i < 8; i++ {
		s = s<<8 | uint64(h[i])
	}
	return s
}

// pickWeighted maps a raw value onto the cumulative threshold table
// (8 entries ending at 100) and returns the sub-category index.
func pickWeighted(v uint64, cum []uint32) uint16 {
	r := uint32(v % 100)
	for i, c := range cum {
		if r < c {
			return uint16(i)
		}
	}
	return uint16(len(cum) - 1)
}

// drawBundle is the pure assignment function for one airdrop unit: the
// composite quadrant-0 trait combines two independent weighted draws, the
// remaining quadrants are derived from further mixed state. The same
// (account, index) pair always yields the same bundle for a given word.
func drawBundle(seed uint64, index uint32, word uint64, symCum, colCum []uint32) [4]uint16 {
	s := entropyStep(seed ^ word ^ (uint64(index)+1)*0x9e3779b97f4a7c15)
	sym := pickWeighted(s, symCum)
	col := pickWeighted(s>>16, colCum)
	q0 := col<<3 | sym

	s = entropyStep(s)
	sym1 := pickWeighted(s, symCum)
	col1 := pickWeighted(s>>16, colCum)
	q1 := 64 + (col1<<3 | sym1)

	s = entropyStep(s)
	q2 := 128 + uint16(s&63)
	q3 := 192 + uint16((s>>6)&63)
	return [4]uint16{q0, q1, q2, q3}
}

// bundleForTrait builds a token bundle anchored on a known winning trait,
// used for queued map mints. The other quadrants come from the word.
func bundleForTrait(trait uint16, word uint64) [4]uint16 {
	s := entropyStep(word ^ uint64(trait)<<32)
	b := [4]uint16{
		uint16(s & 63),
		64 + uint16((s>>6)&63),
		128 + uint16((s>>12)&63),
		192 + uint16((s>>18)&63),
	}
	b[Quadrant(trait)] = trait
	return b
}

// winningTraitsBiased picks one trait per quadrant, biased toward the
// buckets with the highest consumption pressure since the last periodic
// settlement: symbol by counter with random color, color by counter with
// random symbol, quadrant-2 trait by counter, quadrant-3 fully random.
func winningTraitsBiased(word uint64, counts *[DailyCounterCount]uint32) [4]uint16 {
	sym := argmaxRange(counts, 0, 8)
	col0 := uint16(word & 7)
	w0 := col0<<3 | sym

	maxColor := argmaxRange(counts, 8, 8)
	randSym := uint16((word >> 3) & 7)
	w1 := 64 + (maxColor<<3 | randSym)

	w2 := 128 + argmaxRange(counts, 16, 64)
	w3 := 192 + uint16((word>>6)&63)
	return [4]uint16{w0, w1, w2, w3}
}

// winningTraitsUniform picks one trait per quadrant from entropy bits only.
func winningTraitsUniform(word uint64) [4]uint16 {
	return [4]uint16{
		uint16(word & 63),
		64 + uint16((word>>6)&63),
		128 + uint16((word>>12)&63),
		192 + uint16((word>>18)&63),
	}
}

func argmaxRange(counts *[DailyCounterCount]uint32, base, length int) uint16 {
	end := base + length
	if end > DailyCounterCount {
		end = DailyCounterCount
	}
	maxVal := counts[base]
	maxRel := 0
	for i := base + 1; i < end; i++ {
		if counts[i] > maxVal {
			maxVal = counts[i]
			maxRel = i - base
		}
	}
	return uint16(maxRel)
}

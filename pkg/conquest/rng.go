package conquest

// Rng is a small xorshift64* generator carried by value inside GameState.
// A copied state advances its own generator independently, and the same seed
// always produces the same draw sequence on every platform. math/rand's
// *rand.Rand cannot be value-copied or serialized, which rules it out here.
type Rng struct {
	State uint64 `json:"state"`
}

// NewRng derives a generator from a seed string using FNV-1a.
func NewRng(seed string) Rng {
	const (
		offset = 14695981039346656037
		prime  = 1099511628211
	)
	var h uint64 = offset
	for i := 0; i < len(seed); i++ {
		h ^= uint64(seed[i])
		h *= prime
	}
	if h == 0 {
		h = offset
	}
	return Rng{State: h}
}

func (r *Rng) next() uint64 {
	s := r.State
	s ^= s >> 12
	s ^= s << 25
	s ^= s >> 27
	r.State = s
	return s * 2685821657736338717
}

// Intn returns a uniform draw in [0, n). Panics if n <= 0.
func (r *Rng) Intn(n int) int {
	if n <= 0 {
		panic("conquest: Intn with non-positive n")
	}
	return int(r.next() % uint64(n))
}

// RollDice returns a uniform draw in [1, sides].
func (r *Rng) RollDice(sides int) int {
	return r.Intn(sides) + 1
}

// Shuffle reorders n elements with Fisher-Yates using this generator.
func (r *Rng) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		swap(i, j)
	}
}

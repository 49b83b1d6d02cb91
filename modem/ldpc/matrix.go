package ldpc

import (
	"fmt"
	"math/bits"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"github.com/ArrEssJay/chimera/modem/frame"
)

/*
 * Parity-Check Matrix Construction
 *
 * Builds a regular sparse parity-check matrix H (m checks x n variables) with
 * fixed column weight dv and row weight dc, then derives the systematic
 * encoder P = B^-1 * A from H = [A | B] by Gaussian elimination over GF(2).
 *
 * The bipartite structure is kept as index adjacency lists, not a pointer
 * graph. The graph almost always contains cycles; iterative decoding has to
 * tolerate them, so nothing here tries to avoid or special-case them.
 */

const (
	// maxAttempts bounds the deterministic retry loop used when the parity
	// submatrix B comes out singular for a given sub-seed.
	maxAttempts = 64

	// maxRepairSwaps bounds duplicate-edge repair during socket assignment.
	maxRepairSwaps = 10000
)

// Code is an immutable LDPC code instance: the parity-check adjacency plus the
// precomputed systematic encoder. Built once at configuration time.
type Code struct {
	N  int // codeword length (variable nodes)
	M  int // parity checks
	K  int // message length, N - M
	Dv int // column weight
	Dc int // row weight

	Seed int64

	// Adjacency arenas. checkVars[m] lists the variable indices participating
	// in check m (length Dc); varChecks[n] lists the check indices touching
	// variable n (length Dv).
	checkVars [][]int
	varChecks [][]int

	// encoder[i] holds row i of P = B^-1 * A packed into 64-bit words over the
	// K message bits. Parity bit i is the GF(2) dot product of row i with the
	// message.
	encoder [][]uint64
}

// New builds the code for the frame geometry: N = frame.CodewordBits variables
// and M = frame.ECCBits checks. It returns an error when dv*N != dc*M, when
// the weights are out of range, or when no sub-seed yields an invertible
// parity submatrix. Construction is deterministic for a given seed.
func New(dv, dc int, seed int64) (*Code, error) {
	return newWithSize(frame.CodewordBits, frame.ECCBits, dv, dc, seed)
}

func newWithSize(n, m, dv, dc int, seed int64) (*Code, error) {
	if dv < 2 || dc <= dv {
		return nil, fmt.Errorf("ldpc: invalid weights dv=%d dc=%d (need dv >= 2 and dc > dv)", dv, dc)
	}
	if dv*n != dc*m {
		return nil, fmt.Errorf("ldpc: edge conservation violated: dv*n = %d but dc*m = %d", dv*n, dc*m)
	}

	c := &Code{N: n, M: m, K: n - m, Dv: dv, Dc: dc, Seed: seed}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		// Distinct deterministic sub-seed per attempt.
		rng := rand.New(rand.NewSource(seed + int64(attempt)*0x9E3779B9))

		if !c.assignEdges(rng) {
			continue
		}
		if c.deriveEncoder() {
			return c, nil
		}
	}
	return nil, fmt.Errorf("ldpc: no invertible parity submatrix found for seed %d after %d attempts", seed, maxAttempts)
}

// assignEdges distributes the n*dv edge sockets across checks by shuffling,
// then swap-repairs defects until none remain. Returns false when repair does
// not converge, which sends the caller to the next sub-seed.
func (c *Code) assignEdges(rng *rand.Rand) bool {
	sockets := make([]int, c.N*c.Dv)
	for i := range sockets {
		sockets[i] = i / c.Dv
	}
	rng.Shuffle(len(sockets), func(i, j int) {
		sockets[i], sockets[j] = sockets[j], sockets[i]
	})

	// A repair swap can reintroduce a defect elsewhere, so rescan from
	// scratch after every swap until the assignment comes back clean.
	swaps := 0
	for {
		dup := c.findDefect(sockets)
		if dup < 0 {
			break
		}
		if swaps++; swaps > maxRepairSwaps {
			return false
		}
		other := rng.Intn(len(sockets))
		sockets[dup], sockets[other] = sockets[other], sockets[dup]
	}

	c.checkVars = make([][]int, c.M)
	c.varChecks = make([][]int, c.N)
	for m := 0; m < c.M; m++ {
		c.checkVars[m] = make([]int, c.Dc)
		copy(c.checkVars[m], sockets[m*c.Dc:(m+1)*c.Dc])
	}
	for m := 0; m < c.M; m++ {
		for _, v := range c.checkVars[m] {
			c.varChecks[v] = append(c.varChecks[v], m)
		}
	}
	return true
}

// findDefect scans a socket assignment and returns the index of a socket
// that needs to move, or -1 when the assignment is clean. Two kinds of defect
// are repaired: a variable appearing twice in the same check, and two
// variables with identical check support. The latter would let a single-bit
// error shadow its twin and stall the bit-flipping decoder.
func (c *Code) findDefect(sockets []int) int {
	for m := 0; m < c.M; m++ {
		seen := make(map[int]bool, c.Dc)
		for i := 0; i < c.Dc; i++ {
			v := sockets[m*c.Dc+i]
			if seen[v] {
				return m*c.Dc + i
			}
			seen[v] = true
		}
	}

	support := make([][]int, c.N)
	for idx, v := range sockets {
		support[v] = append(support[v], idx/c.Dc)
	}
	sigs := make(map[string]bool, c.N)
	for v := 0; v < c.N; v++ {
		sort.Ints(support[v])
		key := fmt.Sprint(support[v])
		if sigs[key] {
			for idx, sv := range sockets {
				if sv == v {
					return idx
				}
			}
		}
		sigs[key] = true
	}
	return -1
}

// deriveEncoder row-reduces the augmented system [B | A] so that parity bits
// can be computed as p = B^-1 * A * msg. Rows are packed into 64-bit words and
// eliminated word-at-a-time; the row operations for one pivot are independent
// and run in parallel blocks. Returns false when B is singular.
func (c *Code) deriveEncoder() bool {
	// Row i spans M pivot bits followed by K message bits.
	rowBits := c.M + c.K
	words := (rowBits + 63) / 64
	rows := make([][]uint64, c.M)
	for m := 0; m < c.M; m++ {
		rows[m] = make([]uint64, words)
		for _, v := range c.checkVars[m] {
			var col int
			if v >= c.K {
				col = v - c.K // parity column -> pivot region
			} else {
				col = c.M + v // message column
			}
			rows[m][col/64] ^= 1 << (uint(col) % 64)
		}
	}

	for pivot := 0; pivot < c.M; pivot++ {
		// Find a row with the pivot bit set.
		sel := -1
		for r := pivot; r < c.M; r++ {
			if rows[r][pivot/64]&(1<<(uint(pivot)%64)) != 0 {
				sel = r
				break
			}
		}
		if sel < 0 {
			return false
		}
		rows[pivot], rows[sel] = rows[sel], rows[pivot]

		// Eliminate the pivot bit from every other row. Each row update is
		// independent, so fan the work out across blocks.
		pivotRow := rows[pivot]
		parallelRows(c.M, func(r int) {
			if r == pivot {
				return
			}
			if rows[r][pivot/64]&(1<<(uint(pivot)%64)) != 0 {
				for w := 0; w < words; w++ {
					rows[r][w] ^= pivotRow[w]
				}
			}
		})
	}

	// B is now the identity; the message half of each row is P.
	encWords := (c.K + 63) / 64
	c.encoder = make([][]uint64, c.M)
	for m := 0; m < c.M; m++ {
		c.encoder[m] = make([]uint64, encWords)
		for j := 0; j < c.K; j++ {
			col := c.M + j
			if rows[m][col/64]&(1<<(uint(col)%64)) != 0 {
				c.encoder[m][j/64] |= 1 << (uint(j) % 64)
			}
		}
	}
	return true
}

// parallelRows runs fn for every row index in [0, n) across one goroutine per
// CPU. Used only at construction time, never on the per-chunk path.
func parallelRows(n int, fn func(row int)) {
	workers := runtime.NumCPU()
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for r := 0; r < n; r++ {
			fn(r)
		}
		return
	}
	var wg sync.WaitGroup
	chunk := (n + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for r := lo; r < hi; r++ {
				fn(r)
			}
		}(lo, hi)
	}
	wg.Wait()
}

// CheckNeighbors returns the variable indices of check m.
func (c *Code) CheckNeighbors(m int) []int { return c.checkVars[m] }

// VarNeighbors returns the check indices of variable n.
func (c *Code) VarNeighbors(n int) []int { return c.varChecks[n] }

// Syndrome returns the number of unsatisfied parity checks for a candidate
// codeword. Zero means the codeword is valid.
func (c *Code) Syndrome(cw *frame.BitVector) (int, error) {
	if cw.Len() != c.N {
		return 0, fmt.Errorf("ldpc: codeword must be %d bits, got %d", c.N, cw.Len())
	}
	unsat := 0
	for m := 0; m < c.M; m++ {
		var x uint8
		for _, v := range c.checkVars[m] {
			x ^= cw.Get(v)
		}
		if x != 0 {
			unsat++
		}
	}
	return unsat, nil
}

// parityDot computes the GF(2) dot product of an encoder row with the packed
// message words.
func parityDot(row, msg []uint64) uint8 {
	var acc uint64
	for i := range row {
		acc ^= row[i] & msg[i]
	}
	return uint8(bits.OnesCount64(acc) & 1)
}

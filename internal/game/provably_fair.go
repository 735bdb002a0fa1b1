package game

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
)

// RandomSource draws the hazard slot for each level. Intn must return a
// uniformly distributed value in [0, n).
type RandomSource interface {
	Intn(n int) int
}

// CryptoSource draws from crypto/rand.
type CryptoSource struct{}

func (CryptoSource) Intn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return int(v.Int64())
}

// SeededSource derives draws from HMAC-SHA256(serverSeed, clientSeed:nonce:cursor).
// The same seeds and nonce always yield the same sequence, so a settled
// round can be replayed once the server seed is disclosed.
type SeededSource struct {
	ServerSeed string
	ClientSeed string
	Nonce      int
	cursor     int
}

func NewSeededSource(serverSeed, clientSeed string, nonce int) *SeededSource {
	return &SeededSource{
		ServerSeed: serverSeed,
		ClientSeed: clientSeed,
		Nonce:      nonce,
	}
}

func (s *SeededSource) Intn(n int) int {
	bound := uint64(n)
	// rejection sampling keeps the draw free of modulo bias
	limit := math.MaxUint64 - (math.MaxUint64 % bound)
	for {
		v := s.next()
		if v < limit {
			return int(v % bound)
		}
	}
}

func (s *SeededSource) next() uint64 {
	h := hmac.New(sha256.New, []byte(s.ServerSeed))
	h.Write([]byte(fmt.Sprintf("%s:%d:%d", s.ClientSeed, s.Nonce, s.cursor)))
	s.cursor++
	return binary.BigEndian.Uint64(h.Sum(nil)[:8])
}

// GenerateSeed creates a cryptographically secure random seed
func GenerateSeed() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// HashCommitment creates a SHA256 hash of the seed for commitment
func HashCommitment(seed string) string {
	h := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(h[:])
}

// VerifyHazards recomputes the hazard map for a disclosed seed pair and
// compares it with the one a round claims to have used.
func VerifyHazards(serverSeed, clientSeed string, nonce int, layout LayoutConfig, claimed []int) bool {
	if len(claimed) != len(layout.Levels) {
		return false
	}
	src := NewSeededSource(serverSeed, clientSeed, nonce)
	for i, width := range layout.Levels {
		if src.Intn(width) != claimed[i] {
			return false
		}
	}
	return true
}

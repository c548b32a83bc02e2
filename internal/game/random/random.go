package random

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/bits"
)

var ErrInvalidRange = errors.New("random: invalid range")

// Source sorteia inteiros uniformes em [lo, hi]
type Source interface {
	Int(lo, hi int) (int, error)
}

// CryptoSource usa uma fonte criptográfica de bytes com amostragem por rejeição,
// evitando o viés do módulo
type CryptoSource struct {
	r io.Reader
}

// New usa crypto/rand.Reader
func New() *CryptoSource { return &CryptoSource{r: rand.Reader} }

// NewFromReader permite injetar a fonte de bytes (testes)
func NewFromReader(r io.Reader) *CryptoSource { return &CryptoSource{r: r} }

// Int retorna um inteiro uniforme em [lo, hi].
// Lê apenas os bits necessários para o intervalo e descarta valores >= ao maior
// múltiplo do intervalo representável nesses bits.
func (s *CryptoSource) Int(lo, hi int) (int, error) {
	if lo > hi {
		return 0, fmt.Errorf("%w: %d > %d", ErrInvalidRange, lo, hi)
	}
	span := uint64(hi-lo) + 1
	if span == 1 {
		return lo, nil
	}

	width := bits.Len64(span - 1)
	if width >= 64 {
		return 0, fmt.Errorf("%w: span too wide", ErrInvalidRange)
	}
	space := uint64(1) << width
	limit := space - space%span
	mask := space - 1

	buf := make([]byte, (width+7)/8)
	for {
		if _, err := io.ReadFull(s.r, buf); err != nil {
			return 0, fmt.Errorf("random: read: %w", err)
		}
		var v uint64
		for _, b := range buf {
			v = v<<8 | uint64(b)
		}
		v &= mask
		if v < limit {
			return lo + int(v%span), nil
		}
	}
}

var defaultSource = New()

// Int sorteia com a fonte criptográfica padrão
func Int(lo, hi int) (int, error) { return defaultSource.Int(lo, hi) }

// Package memory guarda estado efêmero de processo quando o Redis está desabilitado.
package memory

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// SeenSet é a versão local do conjunto de deduplicação: LRU limitado em
// tamanho, com expiração por entrada.
type SeenSet struct {
	cache *expirable.LRU[string, struct{}]
}

func NewSeenSet(size int, ttl time.Duration) *SeenSet {
	if size <= 0 {
		size = 10000
	}
	return &SeenSet{cache: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

func (s *SeenSet) Seen(_ context.Context, key string) (bool, error) {
	if _, ok := s.cache.Get(key); ok {
		return true, nil
	}
	s.cache.Add(key, struct{}{})
	return false, nil
}

func (s *SeenSet) Len() int {
	return s.cache.Len()
}

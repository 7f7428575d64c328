// Package batch executa operações por item em paralelo e agrega o resultado.
// Uma falha individual nunca interrompe os demais itens.
package batch

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"
)

// ItemResult é o desfecho de um item. Data é opcional e depende da operação.
type ItemResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type Result struct {
	Total       int          `json:"total"`
	Successful  int          `json:"successful"`
	Failed      int          `json:"failed"`
	SuccessRate float64      `json:"successRate"`
	Items       []ItemResult `json:"results"`
}

// Func processa um único item. O valor devolvido vai para ItemResult.Data.
type Func[T any] func(ctx context.Context, item T) (any, error)

// ID é a chave identidade para lotes de ids.
func ID(s string) string { return s }

// Run dispara uma goroutine por item, sem limite de concorrência.
func Run[T any](ctx context.Context, items []T, key func(T) string, fn Func[T]) Result {
	results := make([]ItemResult, len(items))
	fanOut(ctx, items, 0, results, key, fn)
	return summarize(results)
}

// RunGrouped processa os itens em grupos sequenciais de tamanho size, com uma
// pausa medida em clk entre grupos. O cancelamento do contexto durante a pausa
// marca os itens restantes como falha.
func RunGrouped[T any](ctx context.Context, clk clock.Clock, items []T, key func(T) string, size int, pause time.Duration, fn Func[T]) Result {
	if clk == nil {
		clk = clock.RealClock{}
	}
	results := make([]ItemResult, len(items))

	offset := 0
	for i, n := range Groups(len(items), size) {
		if i > 0 && pause > 0 {
			if err := wait(ctx, clk, pause); err != nil {
				for j := offset; j < len(items); j++ {
					results[j] = ItemResult{ID: key(items[j]), Error: err.Error()}
				}
				return summarize(results)
			}
		}
		fanOut(ctx, items[offset:offset+n], offset, results, key, fn)
		offset += n
	}
	return summarize(results)
}

// Groups devolve o tamanho de cada grupo sequencial para n itens.
func Groups(n, size int) []int {
	if n <= 0 {
		return nil
	}
	if size <= 0 {
		size = n
	}
	groups := make([]int, 0, (n+size-1)/size)
	for n > 0 {
		g := min(size, n)
		groups = append(groups, g)
		n -= g
	}
	return groups
}

// fanOut nunca devolve erro ao errgroup: uma falha não pode cancelar os irmãos.
func fanOut[T any](ctx context.Context, items []T, offset int, results []ItemResult, key func(T) string, fn Func[T]) {
	var g errgroup.Group
	for i, item := range items {
		g.Go(func() error {
			id := key(item)
			data, err := fn(ctx, item)
			if err != nil {
				results[offset+i] = ItemResult{ID: id, Error: err.Error()}
				return nil
			}
			results[offset+i] = ItemResult{ID: id, Success: true, Data: data}
			return nil
		})
	}
	_ = g.Wait()
}

func summarize(items []ItemResult) Result {
	r := Result{Total: len(items), Items: items}
	for _, it := range items {
		if it.Success {
			r.Successful++
		} else {
			r.Failed++
		}
	}
	if r.Total > 0 {
		r.SuccessRate = math.Round(float64(r.Successful)/float64(r.Total)*10000) / 10000
	}
	return r
}

func wait(ctx context.Context, clk clock.Clock, d time.Duration) error {
	t := clk.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}

// Succeeded devolve os ids processados com sucesso, na ordem de entrada.
func (r Result) Succeeded() []string {
	ids := make([]string, 0, r.Successful)
	for _, it := range r.Items {
		if it.Success {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

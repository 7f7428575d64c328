package registry

import (
	"context"

	"go.uber.org/zap"

	"github.com/open-apime/fleet/internal/metrics"
	"github.com/open-apime/fleet/internal/pkg/batch"
)

// CreateMany cria instâncias em grupos sequenciais (3 por padrão) com pausa
// entre grupos, e sincroniza uma única vez no final.
func (r *Registry) CreateMany(ctx context.Context, configs []InstanceConfig) (batch.Result, error) {
	if len(configs) == 0 {
		return batch.Result{}, ErrEmptyBatch
	}

	res := batch.RunGrouped(ctx, r.clock, configs, func(c InstanceConfig) string { return c.ID }, r.groupSize, r.groupPause,
		func(ctx context.Context, cfg InstanceConfig) (any, error) {
			return r.Create(ctx, cfg)
		})
	r.finishBatch("create", res)

	if _, err := r.Sync(ctx); err != nil {
		r.log.Warn("registry: sync após criação em lote falhou", zap.Error(err))
	}
	return res, nil
}

func (r *Registry) ConnectMany(ctx context.Context, ids []string) (batch.Result, error) {
	if len(ids) == 0 {
		return batch.Result{}, ErrEmptyBatch
	}
	res := batch.Run(ctx, ids, batch.ID, func(ctx context.Context, id string) (any, error) {
		return r.Connect(ctx, id)
	})
	r.finishBatch("connect", res)
	return res, nil
}

func (r *Registry) DisconnectMany(ctx context.Context, ids []string) (batch.Result, error) {
	if len(ids) == 0 {
		return batch.Result{}, ErrEmptyBatch
	}
	res := batch.Run(ctx, ids, batch.ID, func(ctx context.Context, id string) (any, error) {
		return nil, r.Disconnect(ctx, id)
	})
	r.finishBatch("disconnect", res)
	return res, nil
}

// DeleteMany remove do cache e do repositório cada id que o provider confirmou,
// sem esperar o próximo sync.
func (r *Registry) DeleteMany(ctx context.Context, ids []string) (batch.Result, error) {
	if len(ids) == 0 {
		return batch.Result{}, ErrEmptyBatch
	}
	res := batch.Run(ctx, ids, batch.ID, func(ctx context.Context, id string) (any, error) {
		return nil, r.Delete(ctx, id)
	})
	r.finishBatch("delete", res)
	return res, nil
}

func (r *Registry) finishBatch(op string, res batch.Result) {
	metrics.RecordBatch(op, res.Successful, res.Failed)
	r.log.Info("registry: lote concluído",
		zap.String("op", op),
		zap.Int("total", res.Total),
		zap.Int("successful", res.Successful),
		zap.Int("failed", res.Failed),
	)
}

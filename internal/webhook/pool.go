package webhook

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/open-apime/fleet/internal/pkg/queue"
)

// Handler processa um evento retirado da fila.
type Handler interface {
	Handle(ctx context.Context, ev Event) (Result, error)
}

// Pool retira eventos da fila e distribui entre N workers. A ingestão HTTP
// só enfileira; todo o processamento acontece aqui.
type Pool struct {
	queue   queue.Queue
	handler Handler
	log     *zap.Logger

	numWorkers  int
	pollTimeout time.Duration
	taskChan    chan *queue.Event
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewPool(q queue.Queue, handler Handler, log *zap.Logger, numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 4
	}

	return &Pool{
		queue:       q,
		handler:     handler,
		log:         log,
		numWorkers:  numWorkers,
		pollTimeout: time.Second,
		taskChan:    make(chan *queue.Event, numWorkers*2),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.log.Info("webhook pool: iniciando", zap.Int("workers", p.numWorkers))

	for i := range p.numWorkers {
		p.wg.Add(1)
		go p.runWorker(i)
	}

	p.wg.Add(1)
	go p.runDispatcher()
}

// Stop espera os eventos em processamento terminarem. Eventos ainda na fila
// ficam para a próxima inicialização (redis) ou se perdem (memória).
func (p *Pool) Stop() {
	if p.cancel == nil {
		return
	}
	p.log.Info("webhook pool: encerrando")
	p.cancel()
	p.wg.Wait()
	p.log.Info("webhook pool: encerrada")
}

func (p *Pool) runDispatcher() {
	defer p.wg.Done()

	for {
		event, err := p.queue.Dequeue(p.ctx, p.pollTimeout)
		if err != nil {
			if p.ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			p.log.Error("webhook pool: erro ao desenfileirar", zap.Error(err))
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(p.pollTimeout):
			}
			continue
		}
		if event == nil {
			if p.ctx.Err() != nil {
				return
			}
			continue
		}

		select {
		case p.taskChan <- event:
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) runWorker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case event := <-p.taskChan:
			p.process(id, event)
		}
	}
}

func (p *Pool) process(workerID int, qe *queue.Event) {
	ev := FromQueued(qe)
	res, err := p.handler.Handle(p.ctx, ev)
	if err != nil {
		p.log.Error("webhook pool: falha ao processar evento",
			zap.Int("worker_id", workerID),
			zap.String("event_id", ev.ID),
			zap.String("instance_id", ev.InstanceID),
			zap.Error(err),
		)
		return
	}

	p.log.Debug("webhook pool: evento processado",
		zap.Int("worker_id", workerID),
		zap.String("event_id", ev.ID),
		zap.String("instance_id", ev.InstanceID),
		zap.String("action", string(res.Action)),
	)
}

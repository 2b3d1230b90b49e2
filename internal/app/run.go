package app

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"
)

// runServices запускает долгоживущие компоненты и ждёт их завершения.
// Ошибка любого из них отменяет общий контекст и останавливает остальные.
func (a *App) runServices(ctx context.Context, deps *Dependencies) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.HTTPServer.Run(gCtx)
	})

	for _, worker := range deps.Observers {
		worker := worker
		g.Go(func() error {
			return worker.Run(gCtx)
		})
	}

	for name, consumer := range deps.KafkaConsumers {
		name, consumer := name, consumer
		g.Go(func() error {
			a.Log.Info("starting kafka consumer", "name", name)
			return consumer.Start(gCtx)
		})
	}

	if deps.JobScheduler != nil {
		g.Go(func() error {
			return deps.JobScheduler.Run(gCtx)
		})
	}

	err := g.Wait()
	if err != nil {
		a.Log.Error("service stopped with error", "error", err)
	}

	a.shutdown(deps)
	return err
}

// shutdown после остановки всех горутин: уведомления дописываются, затем закрываются клиенты
func (a *App) shutdown(deps *Dependencies) {
	if deps.Coordinator != nil {
		deps.Coordinator.Wait()
	}

	var closers []namedCloser
	if deps.KafkaProducer != nil {
		closers = append(closers, namedCloser{"kafka producer", deps.KafkaProducer})
	}
	if deps.Cache != nil {
		closers = append(closers, namedCloser{"cache", deps.Cache})
	}
	if deps.DB != nil {
		closers = append(closers, namedCloser{"database", deps.DB})
	}

	for _, c := range closers {
		if err := c.Close(); err != nil {
			a.Log.Error("failed to close dependency", "name", c.name, "error", err)
		}
	}

	a.Log.Info("application shutdown completed")
}

type namedCloser struct {
	name string
	io.Closer
}

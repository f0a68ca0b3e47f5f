package dispatcher

import (
	"context"
	"fmt"
	"time"

	"kitchen-display/internal/broadcast"
	"kitchen-display/internal/common/httpx"
	"kitchen-display/internal/common/logger"
	"kitchen-display/internal/connections/database"
	"kitchen-display/internal/connections/rabbitmq"
	"kitchen-display/internal/microservices/dispatcher/handlers"
	"kitchen-display/internal/microservices/dispatcher/repository"
	"kitchen-display/internal/microservices/dispatcher/service"
)

// Run starts the order-intake HTTP API. rmq may be nil: the dispatcher
// degrades to the remaining channels plus the durable write.
func Run(ctx context.Context, port int, db *database.Conn, rmq *rabbitmq.Client, bus *broadcast.Bus, log *logger.Logger) error {
	repo := repository.NewDispatcherRepository(db)
	resolver := service.NewResolver(repo, log)
	fanout := service.NewFanout(log, service.NewAMQPChannel(rmq), service.NewBusChannel(bus))
	svc := service.NewDispatcherService(repo, resolver, fanout, log)
	h := handlers.NewDispatcherHandler(svc, db.Ping, rmq.Ping)

	srv := httpx.New(fmt.Sprintf(":%d", port), h.Routes()).WithShutdownTimeout(10 * time.Second)
	log.Info("dispatcher_listening", map[string]any{"port": port})
	return srv.Run(ctx)
}

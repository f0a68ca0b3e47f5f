package display

import (
	"context"
	"fmt"
	"time"

	"kitchen-display/internal/broadcast"
	"kitchen-display/internal/common/httpx"
	"kitchen-display/internal/common/logger"
	"kitchen-display/internal/config"
	"kitchen-display/internal/connections/database"
	"kitchen-display/internal/connections/rabbitmq"
	"kitchen-display/internal/microservices/display/handlers"
	"kitchen-display/internal/microservices/display/repository"
	"kitchen-display/internal/microservices/display/service"
	dispatcherrepo "kitchen-display/internal/microservices/dispatcher/repository"
	dispatchersvc "kitchen-display/internal/microservices/dispatcher/service"
)

// Run starts one screen-display session and its HTTP surface. Status
// mutations from the screen go through the dispatcher service so the
// write-then-notify path stays single.
func Run(ctx context.Context, port int, cfg config.Display, db *database.Conn, rmq *rabbitmq.Client, bus *broadcast.Bus, log *logger.Logger) error {
	if cfg.ScreenID <= 0 {
		return fmt.Errorf("no screen selected: set display.screen_id (or KD_SCREEN_ID)")
	}

	drepo := dispatcherrepo.NewDispatcherRepository(db)
	resolver := dispatchersvc.NewResolver(drepo, log)
	fanout := dispatchersvc.NewFanout(log, dispatchersvc.NewAMQPChannel(rmq), dispatchersvc.NewBusChannel(bus))
	status := dispatchersvc.NewDispatcherService(drepo, resolver, fanout, log)

	repo := repository.NewDisplayRepository(db)
	session := service.NewScreenSession(repo, status, service.NewLogNotifier(log), log,
		sessionOptions(cfg),
		service.NewAMQPSource(rmq, cfg.ScreenID, log),
		service.NewBusSource(bus, cfg.ScreenID),
	)
	if err := session.Open(ctx, cfg.ScreenID, cfg.ConfigID); err != nil {
		return err
	}
	defer session.Close()

	h := handlers.NewDisplayHandler(session)
	srv := httpx.New(fmt.Sprintf(":%d", port), h.Routes()).WithShutdownTimeout(10 * time.Second)
	log.Info("display_listening", map[string]any{"port": port, "screen_id": cfg.ScreenID})
	return srv.Run(ctx)
}

// sessionOptions maps the deploy config onto the session timers. The
// configured poll interval is the fallback; a positive auto_refresh_seconds
// on the screen row still wins when the session opens.
func sessionOptions(cfg config.Display) service.SessionOptions {
	var opts service.SessionOptions
	if cfg.PollIntervalSec > 0 {
		opts.PollInterval = time.Duration(cfg.PollIntervalSec) * time.Second
	}
	return opts
}

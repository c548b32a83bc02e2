package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Run sobe srv e o encerra com Shutdown quando ctx for cancelado.
// Retorna nil num encerramento limpo; feito para rodar dentro de um errgroup.
func Run(ctx context.Context, srv *http.Server, name string, log *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info(name+" listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn(name+" shutdown", zap.Error(err))
		return err
	}
	log.Info(name + " stopped")
	return nil
}

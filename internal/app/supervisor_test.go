package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"
)

// fakeServer はShutdownが呼ばれるまでListenAndServeをブロックする。
type fakeServer struct {
	listenErr   error
	shutdownErr error
	stopped     chan struct{}
	shutdowns   int
}

func newFakeServer() *fakeServer {
	return &fakeServer{stopped: make(chan struct{})}
}

func (f *fakeServer) ListenAndServe() error {
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.stopped
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(ctx context.Context) error {
	f.shutdowns++
	close(f.stopped)
	return f.shutdownErr
}

func TestHTTPServerService_ShutsDownOnCancel(t *testing.T) {
	srv := newFakeServer()
	svc := NewHTTPServerService("api-server", srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("キャンセル後にServeが終了するべき")
	}
	if srv.shutdowns != 1 {
		t.Errorf("Shutdownの呼び出し回数 = %d, want 1", srv.shutdowns)
	}
}

func TestHTTPServerService_ReturnsListenError(t *testing.T) {
	srv := newFakeServer()
	srv.listenErr = errors.New("address already in use")
	svc := NewHTTPServerService("metrics-server", srv, time.Second)

	err := svc.Serve(context.Background())
	if err == nil {
		t.Fatal("起動に失敗した場合はエラーを返すべき")
	}
	if !errors.Is(err, srv.listenErr) {
		t.Errorf("元のエラーをラップするべき: %v", err)
	}
}

func TestHTTPServerService_String(t *testing.T) {
	svc := NewHTTPServerService("api-server", newFakeServer(), 0)
	if svc.String() != "api-server" {
		t.Errorf("String() = %q, want api-server", svc.String())
	}
	if svc.shutdownTimeout != 10*time.Second {
		t.Errorf("shutdownTimeout = %v, want 10s", svc.shutdownTimeout)
	}
}

func TestServeUntilDone(t *testing.T) {
	logger := newDiscardLogger()

	t.Run("シグナルによる停止は正常終了", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := serveUntilDone(ctx, func(ctx context.Context) error { return ctx.Err() }, logger)
		if err != nil {
			t.Errorf("serveUntilDone() = %v, want nil", err)
		}
	})

	t.Run("スーパーバイザーの異常終了はエラー", func(t *testing.T) {
		err := serveUntilDone(context.Background(), func(context.Context) error {
			return errors.New("boom")
		}, logger)
		if err == nil {
			t.Error("異常終了はエラーを返すべき")
		}
	})
}

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

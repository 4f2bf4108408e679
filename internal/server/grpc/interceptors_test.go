package grpcserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/and161185/timecards/internal/metrics"
)

type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "127.0.0.1:12345" }

var healthCheck = &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return zap.New(core), logs
}

func TestLoggingUnary(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	cases := []struct {
		name     string
		handler  grpc.UnaryHandler
		wantResp any
		wantErr  error
		wantCode string
	}{
		{
			name:     "ok",
			handler:  func(context.Context, any) (any, error) { return "ok", nil },
			wantResp: "ok",
			wantCode: "OK",
		},
		{
			name:     "plain error passes through",
			handler:  func(context.Context, any) (any, error) { return nil, boom },
			wantErr:  boom,
			wantCode: "Unknown",
		},
		{
			name: "status code is logged",
			handler: func(context.Context, any) (any, error) {
				return nil, status.Error(codes.NotFound, "unknown service")
			},
			wantCode: "NotFound",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			log, logs := observed()
			ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: fakeAddr{}})

			resp, err := LoggingUnary(log)(ctx, "req", healthCheck, tc.handler)
			require.Equal(t, tc.wantResp, resp)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			}

			entries := logs.All()
			require.Len(t, entries, 1)
			fields := entries[0].ContextMap()
			require.Equal(t, healthCheck.FullMethod, fields["method"])
			require.Equal(t, tc.wantCode, fields["code"])
			require.Equal(t, "127.0.0.1:12345", fields["peer"])
		})
	}
}

func TestLoggingUnary_MeasuresHandler(t *testing.T) {
	t.Parallel()

	log, logs := observed()
	_, err := LoggingUnary(log)(context.Background(), "req", healthCheck, func(context.Context, any) (any, error) {
		time.Sleep(5 * time.Millisecond)
		return nil, nil
	})
	require.NoError(t, err)
	dur, ok := logs.All()[0].ContextMap()["dur"].(time.Duration)
	require.True(t, ok)
	require.GreaterOrEqual(t, dur, 5*time.Millisecond)
	require.Empty(t, logs.All()[0].ContextMap()["peer"], "no peer in context")
}

func TestRecoverUnary(t *testing.T) {
	t.Parallel()

	log, logs := observed()
	ic := RecoverUnary(log)

	_, err := ic(context.Background(), "req", healthCheck, func(context.Context, any) (any, error) {
		panic("oh no")
	})
	require.Equal(t, codes.Internal, status.Code(err))
	require.Equal(t, 1, logs.FilterMessage("panic").Len())

	resp, err := ic(context.Background(), "req", healthCheck, func(context.Context, any) (any, error) { return 42, nil })
	require.NoError(t, err)
	require.Equal(t, 42, resp)
}

func TestMetricsUnary_RecordsCode(t *testing.T) {
	t.Parallel()

	m := metrics.New(prometheus.NewRegistry())
	ic := MetricsUnary(m)

	_, _ = ic(context.Background(), "req", healthCheck, func(context.Context, any) (any, error) { return "ok", nil })
	_, _ = ic(context.Background(), "req", healthCheck, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	})

	require.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("grpc", healthCheck.FullMethod, "0")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("grpc", healthCheck.FullMethod, "5")))
}

func TestMetricsUnary_NilMetrics(t *testing.T) {
	t.Parallel()

	resp, err := MetricsUnary(nil)(context.Background(), "req", healthCheck,
		func(context.Context, any) (any, error) { return 1, nil })
	require.NoError(t, err)
	require.Equal(t, 1, resp)
}

func TestNew_RegistersHealth(t *testing.T) {
	t.Parallel()

	s := New(zap.NewNop(), nil)
	NewHealth(nil, time.Second, zap.NewNop()).Register(s)
	require.Contains(t, s.GetServiceInfo(), "grpc.health.v1.Health")
}

// Package health serves the gRPC health protocol, reporting whether the
// database behind the account API is reachable.
package health

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the service reported next to the overall ("") status.
const ServiceName = "tubeaccount.v1.Users"

// Pinger is implemented by *postgres.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor keeps the health server's status in sync with database reachability.
type Monitor struct {
	hs      *grpchealth.Server
	db      Pinger
	log     *zap.Logger
	timeout time.Duration
}

// NewMonitor constructs a monitor; status is NOT_SERVING until the first Check.
func NewMonitor(db Pinger, log *zap.Logger) *Monitor {
	hs := grpchealth.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Monitor{hs: hs, db: db, log: log, timeout: 2 * time.Second}
}

// Check pings the database once and publishes the result.
func (m *Monitor) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if err := m.db.Ping(ctx); err != nil {
		m.log.Warn("database ping failed", zap.Error(err))
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	m.hs.SetServingStatus("", st)
	m.hs.SetServingStatus(ServiceName, st)
	return st
}

// Run re-checks every interval until ctx ends, then marks everything NOT_SERVING.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	m.Check(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			m.hs.Shutdown()
			return
		case <-t.C:
			m.Check(ctx)
		}
	}
}

// NewServer builds a gRPC server exposing only the health service (and
// reflection when dev is set).
func NewServer(m *Monitor, log *zap.Logger, dev bool) *grpc.Server {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoverUnary(log),
			LoggingUnary(log),
		),
	)
	healthpb.RegisterHealthServer(s, m.hs)
	if dev {
		reflection.Register(s)
	}
	return s
}

package integration

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthapi "github.com/oshokin/alarm-display/internal/api/grpc/health"
	"github.com/oshokin/alarm-display/internal/config"
	"github.com/oshokin/alarm-display/internal/domain/alarm"
	repository "github.com/oshokin/alarm-display/internal/repository/state"
	"github.com/oshokin/alarm-display/internal/service/panel"
)

// freeAddress reserves a local TCP port and releases it for the code under test.
func freeAddress(t *testing.T) string {
	t.Helper()

	lc := net.ListenConfig{}

	lis, err := lc.Listen(t.Context(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	return addr
}

// TestDisplayNode_RunsOfflineAndStops starts the real node against an unreachable
// broker and checks the health endpoint, the persisted state and a clean stop.
func TestDisplayNode_RunsOfflineAndStops(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	badgePath := filepath.Join(dir, "badges.txt")
	cfgPath := filepath.Join(dir, "settings.yaml")
	statusAddress := freeAddress(t)

	// Last known state from a previous run.
	repo := repository.NewFileRepository(statePath)
	require.NoError(t, repo.Save(t.Context(), &repository.Snapshot{
		State:     alarm.StateArmedNight,
		UpdatedAt: time.Now().UTC(),
	}))

	// One badge scan waiting in the reader.
	require.NoError(t, os.WriteFile(badgePath, []byte("04:a1:b2:c3\n"), config.DefaultFilePermissions))

	require.NoError(t, config.Save(cfgPath, &config.Config{
		Hostname:      "alarmdisplay1",
		LogLevel:      "error",
		Broker:        config.Broker{Host: "127.0.0.1", Port: 1},
		StateFile:     statePath,
		StatusAddress: statusAddress,
		BadgeDevice:   badgePath,
		RestartMode:   config.RestartExit,
		Timings: config.Timings{
			ConnectTimeout: 200 * time.Millisecond,
			RetryDelay:     50 * time.Millisecond,
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- panel.Run(ctx, &panel.Options{ConfigPath: cfgPath})
	}()

	conn, err := grpc.NewClient(statusAddress, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	defer conn.Close()

	client := healthpb.NewHealthClient(conn)

	// The broker is unreachable, so the node reports NOT_SERVING once the endpoint is up.
	require.Eventually(t, func() bool {
		response, checkErr := client.Check(t.Context(), &healthpb.HealthCheckRequest{Service: healthapi.ServiceName})

		return checkErr == nil && response.GetStatus() == healthpb.HealthCheckResponse_NOT_SERVING
	}, 5*time.Second, 50*time.Millisecond)

	cancel()

	select {
	case err = <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("display node did not stop")
	}

	// Nothing authoritative arrived, so the persisted state is unchanged.
	snapshot, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, alarm.StateArmedNight, snapshot.State)
}

package integration

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ehr/namaste/internal/platform/db"
)

// defaultPGImage must ship the pg_trgm contrib extension used by the search index.
const defaultPGImage = "postgres:16-alpine"

// startPostgresContainer runs a throwaway Postgres through the Docker CLI with
// a host port chosen by Docker, and returns its URL and a cleanup function.
// INTEGRATION_PG_IMAGE overrides the image.
func startPostgresContainer(ctx context.Context) (string, func(), error) {
	image := os.Getenv("INTEGRATION_PG_IMAGE")
	if image == "" {
		image = defaultPGImage
	}

	out, err := exec.CommandContext(ctx, "docker", "run", "-d", "--rm",
		"--label", "namaste-integration=1",
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_USER=namaste",
		"-e", "POSTGRES_PASSWORD=namaste",
		"-e", "POSTGRES_DB=namaste",
		image,
	).CombinedOutput()
	if err != nil {
		return "", nil, fmt.Errorf("docker run %s: %w\n%s", image, err, out)
	}
	id := strings.TrimSpace(string(out))
	cleanup := func() {
		exec.Command("docker", "rm", "-f", id).Run()
	}

	hostPort, err := publishedPort(ctx, id)
	if err != nil {
		cleanup()
		return "", nil, err
	}

	url := fmt.Sprintf("postgres://namaste:namaste@%s/namaste?sslmode=disable", hostPort)
	if err := waitForTermStore(ctx, url, 30*time.Second); err != nil {
		cleanup()
		return "", nil, err
	}
	return url, cleanup, nil
}

// publishedPort asks Docker which host address 5432 was bound to.
func publishedPort(ctx context.Context, id string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", "port", id, "5432/tcp").Output()
	if err != nil {
		return "", fmt.Errorf("docker port: %w", err)
	}
	// One line per binding, e.g. "127.0.0.1:49153".
	line := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	if _, _, err := net.SplitHostPort(line); err != nil {
		return "", fmt.Errorf("docker port: unexpected output %q", line)
	}
	return line, nil
}

// waitForTermStore polls until Postgres answers and can provide pg_trgm, which
// the second migration needs.
func waitForTermStore(ctx context.Context, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for {
		lastErr = checkTermStore(ctx, url)
		if lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres not ready after %v: %w", timeout, lastErr)
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func checkTermStore(ctx context.Context, url string) error {
	attemptCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	pool, err := db.NewPool(attemptCtx, db.PoolConfig{URL: url, MaxConns: 1, ApplicationName: "terminology-integration"})
	if err != nil {
		return err
	}
	defer pool.Close()

	var available bool
	err = pool.QueryRow(attemptCtx,
		`SELECT EXISTS (SELECT 1 FROM pg_available_extensions WHERE name = 'pg_trgm')`).Scan(&available)
	if err != nil {
		return err
	}
	if !available {
		return errors.New("pg_trgm extension is not available in this image")
	}
	return nil
}

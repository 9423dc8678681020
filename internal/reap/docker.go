package reap

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"go.abhg.dev/log/silog"

	"github.com/Paintersrp/leash/internal/audit"
)

// SessionLabel marks containers started on behalf of a leash-managed test
// session. Labeled containers match the container sweep regardless of name.
const SessionLabel = "dev.leash.session"

// ContainerSweeper removes leaked test containers. Like the process sweep
// it is stateless: it works off the daemon's container list, not any
// in-process record.
type ContainerSweeper struct {
	cli        *client.Client
	clientOnce sync.Once
	clientErr  error

	log *silog.Logger
}

// NewContainerSweeper constructs a sweeper. The docker client is created
// lazily on first use so that hosts without a daemon only fail when the
// container sweep is actually requested.
func NewContainerSweeper(log *silog.Logger) *ContainerSweeper {
	if log == nil {
		log = silog.Nop()
	}
	return &ContainerSweeper{log: log}
}

func (s *ContainerSweeper) getClient() (*client.Client, error) {
	s.clientOnce.Do(func() {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			s.clientErr = err
			return
		}
		s.cli = cli
	})
	return s.cli, s.clientErr
}

// ContainerReport is the result of one container sweep.
type ContainerReport struct {
	Found   int
	Removed int
	Failed  int
}

// Sweep force-removes every container carrying the session label or whose
// name matches the signature. Containers are stopped with a short grace
// period first, mirroring the graceful-then-forceful contract for
// processes.
func (s *ContainerSweeper) Sweep(ctx context.Context, signature *regexp.Regexp, auditLog *audit.Log) (ContainerReport, error) {
	cli, err := s.getClient()
	if err != nil {
		return ContainerReport{}, fmt.Errorf("create docker client: %w", err)
	}

	containers, err := cli.ContainerList(ctx, types.ContainerListOptions{All: true})
	if err != nil {
		return ContainerReport{}, fmt.Errorf("container list: %w", err)
	}

	var report ContainerReport
	for _, ctr := range containers {
		if !s.matches(ctr, signature) {
			continue
		}
		report.Found++
		name := containerName(ctr)
		s.log.Info("container sweep target", "id", ctr.ID[:12], "name", name, "image", ctr.Image)
		if auditLog != nil {
			if err := auditLog.Discovery(0, "docker", name+" ("+ctr.ID[:12]+")"); err != nil {
				s.log.Warn("audit write failed", "error", err)
			}
		}

		if err := s.remove(ctx, cli, ctr.ID); err != nil {
			report.Failed++
			s.log.Warn("container remove failed", "id", ctr.ID[:12], "error", err)
			continue
		}
		report.Removed++
	}

	if auditLog != nil && report.Found > 0 {
		if err := auditLog.Summary(report.Removed, report.Failed); err != nil {
			s.log.Warn("audit write failed", "error", err)
		}
	}
	return report, nil
}

func (s *ContainerSweeper) matches(ctr types.Container, signature *regexp.Regexp) bool {
	if _, ok := ctr.Labels[SessionLabel]; ok {
		return true
	}
	if signature == nil {
		return false
	}
	for _, name := range ctr.Names {
		if signature.MatchString(strings.TrimPrefix(name, "/")) {
			return true
		}
	}
	return false
}

func (s *ContainerSweeper) remove(ctx context.Context, cli *client.Client, id string) error {
	sec := int((2 * time.Second).Seconds())
	if err := cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &sec}); err != nil && !client.IsErrNotFound(err) {
		if killErr := cli.ContainerKill(ctx, id, "SIGKILL"); killErr != nil && !client.IsErrNotFound(killErr) {
			return fmt.Errorf("container stop: %v; kill: %w", err, killErr)
		}
	}
	if err := cli.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("container remove: %w", err)
	}
	return nil
}

func containerName(ctr types.Container) string {
	if len(ctr.Names) == 0 {
		return ctr.ID[:12]
	}
	return strings.TrimPrefix(ctr.Names[0], "/")
}

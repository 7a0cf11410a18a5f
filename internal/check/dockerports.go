package check

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/just-amazing/vps-sentinel/internal/execcmd"
	"github.com/just-amazing/vps-sentinel/pkg/shared/config"
)

// DockerPortsCheck detects database ports published to the public interface,
// either on running containers or in project compose files.
type DockerPortsCheck struct {
	cfg    *config.Config
	runner execcmd.Runner
	logger hclog.Logger
}

// databasePorts are ports that must never be bound to 0.0.0.0.
var databasePorts = map[string]string{
	"5432":  "PostgreSQL",
	"3306":  "MySQL",
	"3307":  "MySQL (alternate)",
	"6379":  "Redis",
	"6380":  "Redis (alternate)",
	"27017": "MongoDB",
	"9200":  "Elasticsearch",
}

// publicRemapPatterns matches "0.0.0.0:<host>-><dbport>/" bindings.
var publicRemapPatterns = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(databasePorts))
	for port := range databasePorts {
		m[port] = regexp.MustCompile(`0\.0\.0\.0:(\d+)->` + port + `/`)
	}
	return m
}()

// NewDockerPortsCheck creates the database port exposure check.
func NewDockerPortsCheck(cfg *config.Config, runner execcmd.Runner, logger hclog.Logger) Check {
	return &DockerPortsCheck{cfg: cfg, runner: runner, logger: logger}
}

func (c *DockerPortsCheck) Name() string { return "docker-ports" }

func (c *DockerPortsCheck) Run(ctx context.Context) (Finding, error) {
	exposed := c.checkRunningContainers(ctx)
	exposed = append(exposed, c.checkComposeFiles()...)

	if len(exposed) > 0 {
		details := append([]string{}, exposed...)
		details = append(details,
			"Remove the 'ports' section from database services in docker-compose.yml.",
			"Databases should only be reachable via the internal Docker network.",
		)
		// Editing someone's compose file unattended is out of the question.
		return criticalFinding(c.Name(),
			fmt.Sprintf("%d database port(s) exposed to the internet", len(exposed)),
			details), nil
	}

	return okFinding(c.Name(),
		"All database ports properly isolated",
		"No database ports bound to 0.0.0.0",
	), nil
}

func (c *DockerPortsCheck) checkRunningContainers(ctx context.Context) []string {
	var exposed []string

	res := c.runner.Run(ctx, "docker", "ps", "--format", "{{.Names}}|{{.Ports}}")
	if res.Failed() {
		c.logger.Warn("could not list docker containers", "stderr", res.Stderr)
		return exposed
	}

	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if line == "" || !strings.Contains(line, "|") {
			continue
		}
		parts := strings.SplitN(line, "|", 2)
		name, ports := parts[0], parts[1]

		for port, db := range databasePorts {
			if strings.Contains(ports, "0.0.0.0:"+port+"->") {
				exposed = append(exposed,
					fmt.Sprintf("[container] %s: %s port %s exposed to 0.0.0.0", name, db, port))
				continue
			}
			// Remapped host ports still count when bound publicly,
			// e.g. "0.0.0.0:15432->5432/tcp".
			if m := publicRemapPatterns[port].FindStringSubmatch(ports); m != nil {
				exposed = append(exposed,
					fmt.Sprintf("[container] %s: %s port %s exposed on 0.0.0.0:%s", name, db, port, m[1]))
			}
		}
	}
	return exposed
}

func (c *DockerPortsCheck) checkComposeFiles() []string {
	var exposed []string
	for _, project := range c.cfg.Projects {
		if project.DockerCompose == "" {
			continue
		}
		content, err := os.ReadFile(project.DockerCompose)
		if err != nil {
			c.logger.Warn("could not read compose file",
				"project", project.Name, "path", project.DockerCompose, "error", err)
			continue
		}
		exposed = append(exposed, scanComposeContent(string(content), project.Name, project.DockerCompose)...)
	}
	return exposed
}

// scanComposeContent looks for database ports published inside a "ports:"
// list. Line-based scanning keeps the check read-only and tolerant of
// compose files that no longer parse as strict YAML.
func scanComposeContent(content, projectName, path string) []string {
	var exposed []string
	inPorts := false

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, "ports:"):
			inPorts = true
		case inPorts && strings.HasPrefix(line, "-"):
			entry := strings.Trim(strings.TrimPrefix(line, "-"), ` "'`)
			for port, db := range databasePorts {
				if strings.HasSuffix(entry, ":"+port) || entry == port+":"+port {
					exposed = append(exposed,
						fmt.Sprintf("[compose] %s: %s port %s exposed in %s", projectName, db, port, path))
				}
			}
		case line != "" && !strings.HasPrefix(line, "#"):
			inPorts = false
		}
	}
	return exposed
}

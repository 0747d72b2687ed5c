// Package bootstrap assembles an incident pipeline from configuration. Both
// binaries share it so the server and the one-shot invoker run the same stages.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/alarmhook/internal/awsclient"
	"github.com/linnemanlabs/alarmhook/internal/cfg"
	"github.com/linnemanlabs/alarmhook/internal/gather"
	"github.com/linnemanlabs/alarmhook/internal/incident"
	"github.com/linnemanlabs/alarmhook/internal/logquery"
	"github.com/linnemanlabs/alarmhook/internal/remediation"
	"github.com/linnemanlabs/alarmhook/internal/report"
	"github.com/linnemanlabs/alarmhook/internal/summary"
	"github.com/linnemanlabs/alarmhook/internal/summary/anthropic"
)

// Pipeline loads the AWS configuration once and builds a pipeline whose
// stages talk to the configured backends.
func Pipeline(ctx context.Context, c *cfg.Pipeline, logger log.Logger, hooks ...incident.Hooks) (*incident.Pipeline, error) {
	if logger == nil {
		logger = log.Nop()
	}

	awsCfg, err := awsclient.LoadConfig(ctx, c.AWSOptions())
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	clients := awsclient.New(awsCfg)

	if missing := c.IncompleteQuery(); missing != "" {
		logger.Warn(ctx, "log query stage disabled, only one of log group and query expression is set",
			"missing", missing,
		)
	}

	return incident.NewPipeline(c.ToOptions(), Deps(c, clients, logger), logger, hooks...), nil
}

// Deps wires the stage implementations onto clients.
func Deps(c *cfg.Pipeline, clients *awsclient.Clients, logger log.Logger) incident.Deps {
	var backend summary.Backend = clients.Bedrock
	if c.Summarizer == cfg.SummarizerAnthropic {
		backend = anthropic.New(c.AnthropicAPIKey)
	}

	gatherer := gather.New(clients.SSM, clients.Secrets, logger)
	gatherer.Fatal = c.ContextErrorsFatal

	return incident.Deps{
		Poller:   logquery.NewPoller(clients.Logs, logger),
		Gatherer: gatherer,
		Composer: summary.NewComposer(backend, logger),
		Sink:     report.NewSink(clients.S3, logger),
		Trigger:  remediation.NewTrigger(clients.SSM, logger),
	}
}

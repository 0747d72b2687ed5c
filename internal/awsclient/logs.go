package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/samber/lo"

	"github.com/linnemanlabs/alarmhook/internal/logquery"
)

// LogsAPI is the subset of the CloudWatch Logs client used here.
type LogsAPI interface {
	StartQuery(ctx context.Context, in *cloudwatchlogs.StartQueryInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StartQueryOutput, error)
	GetQueryResults(ctx context.Context, in *cloudwatchlogs.GetQueryResultsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetQueryResultsOutput, error)
}

func newLogsClient(cfg aws.Config) LogsAPI {
	return cloudwatchlogs.NewFromConfig(cfg)
}

// Logs runs Logs Insights queries. It implements logquery.Backend.
type Logs struct {
	api LogsAPI
}

// NewLogs wraps api.
func NewLogs(api LogsAPI) *Logs {
	return &Logs{api: api}
}

// StartQuery starts a Logs Insights query and returns its id.
func (l *Logs) StartQuery(ctx context.Context, req logquery.Request) (string, error) {
	out, err := l.api.StartQuery(ctx, &cloudwatchlogs.StartQueryInput{
		LogGroupName: lo.ToPtr(req.LogGroup),
		QueryString:  lo.ToPtr(req.Query),
		StartTime:    lo.ToPtr(req.Start),
		EndTime:      lo.ToPtr(req.End),
		Limit:        lo.ToPtr(req.Limit),
	})
	if err != nil {
		return "", fmt.Errorf("cloudwatchlogs start query: %w", err)
	}
	return lo.FromPtr(out.QueryId), nil
}

// Poll fetches the query status. Rows are only returned once complete.
func (l *Logs) Poll(ctx context.Context, queryID string) (logquery.Status, logquery.Result, error) {
	out, err := l.api.GetQueryResults(ctx, &cloudwatchlogs.GetQueryResultsInput{
		QueryId: lo.ToPtr(queryID),
	})
	if err != nil {
		return "", nil, fmt.Errorf("cloudwatchlogs get query results: %w", err)
	}

	status := logquery.Status(out.Status)
	if status == "" {
		status = logquery.StatusUnknown
	}
	if out.Status != types.QueryStatusComplete {
		return status, nil, nil
	}

	rows := make(logquery.Result, 0, len(out.Results))
	for _, fields := range out.Results {
		row := make(logquery.Row, len(fields))
		for _, f := range fields {
			name := lo.FromPtr(f.Field)
			if name == "" {
				continue
			}
			row[name] = lo.FromPtr(f.Value)
		}
		rows = append(rows, row)
	}
	return status, rows, nil
}

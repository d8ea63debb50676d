package main

import (
	"context"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	tracklogGRPC "github.com/BearBump/TrackLog/internal/api/tracklog_grpc"
)

// logClient is the part of the gRPC client the commands use.
type logClient interface {
	SubmitEvent(ctx context.Context, in *tracklogGRPC.SubmitEventRequest, opts ...grpc.CallOption) (*tracklogGRPC.SubmitEventResponse, error)
	ListEvents(ctx context.Context, in *tracklogGRPC.ListEventsRequest, opts ...grpc.CallOption) (*tracklogGRPC.ListEventsResponse, error)
	ExportEvents(ctx context.Context, in *tracklogGRPC.ListEventsRequest, opts ...grpc.CallOption) (*tracklogGRPC.ExportEventsResponse, error)
	GetHistory(ctx context.Context, in *tracklogGRPC.GetHistoryRequest, opts ...grpc.CallOption) (*tracklogGRPC.ListEventsResponse, error)
	GetStats(ctx context.Context, in *tracklogGRPC.OrganizationRequest, opts ...grpc.CallOption) (*tracklogGRPC.GetStatsResponse, error)
	ListStoppedItems(ctx context.Context, in *tracklogGRPC.OrganizationRequest, opts ...grpc.CallOption) (*tracklogGRPC.ListStoppedItemsResponse, error)
	SearchReferences(ctx context.Context, in *tracklogGRPC.SearchReferencesRequest, opts ...grpc.CallOption) (*tracklogGRPC.SearchReferencesResponse, error)
}

type dialFunc func(addr string) (logClient, func() error, error)

func dialGRPC(addr string) (logClient, func() error, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "dial %s", addr)
	}
	return tracklogGRPC.NewClient(conn), conn.Close, nil
}

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// cli carries resolved settings and the open connection for one run.
type cli struct {
	v      *viper.Viper
	dial   dialFunc
	client logClient
	close  func() error
}

func (c *cli) org() (string, error) {
	org := strings.TrimSpace(c.v.GetString("org"))
	if org == "" {
		return "", errors.New("organization is required: pass --org or set TRACKLOG_ORG")
	}
	return org, nil
}

func (c *cli) context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, c.v.GetDuration("timeout"))
}

func (c *cli) jsonOutput() bool { return c.v.GetBool("json") }

func newRootCmd(dial dialFunc) *cobra.Command {
	c := &cli{v: viper.New(), dial: dial}

	root := &cobra.Command{
		Use:           "tracklog",
		Short:         "Query and feed the tracking event log",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if c.v.GetBool("no-color") {
				color.NoColor = true
			}
			if err := c.loadConfigFile(); err != nil {
				return err
			}
			client, closeFn, err := c.dial(c.v.GetString("addr"))
			if err != nil {
				return err
			}
			c.client, c.close = client, closeFn
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.close != nil {
				return c.close()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.String("addr", "localhost:50051", "tracklog-api gRPC address")
	pf.String("org", "", "organization id")
	pf.Duration("timeout", 15*time.Second, "per-request timeout")
	pf.Bool("json", false, "print JSON instead of tables")
	pf.Bool("no-color", false, "disable colored output")
	pf.String("config", "", "optional YAML file with addr/org/timeout")
	_ = c.v.BindPFlags(pf)
	c.v.SetEnvPrefix("TRACKLOG")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root.AddCommand(
		newSubmitCmd(c),
		newEventsCmd(c),
		newExportCmd(c),
		newHistoryCmd(c),
		newStatsCmd(c),
		newStoppedCmd(c),
		newSearchCmd(c),
	)
	return root
}

func (c *cli) loadConfigFile() error {
	path := c.v.GetString("config")
	if path == "" {
		return nil
	}
	c.v.SetConfigFile(path)
	c.v.SetConfigType("yaml")
	if err := c.v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "read config %s", path)
	}
	return nil
}

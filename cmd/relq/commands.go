package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/yaml.v3"

	"github.com/asakaida/relata/internal/app"
	"github.com/asakaida/relata/internal/handlers"
	"github.com/asakaida/relata/internal/infrastructure/config"
	"github.com/asakaida/relata/internal/infrastructure/logging"
)

// options are the global flags shared by every subcommand.
type options struct {
	env     string
	dataset string
	server  string
	timeout time.Duration
}

// querier runs one RelationService method, locally or against a server.
type querier interface {
	Call(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error)
	Close() error
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "relq",
		Short: "Query relations of a relata dataset",
		Long: `Query relations of a relata dataset.
Resolves relation paths locally from the configured dataset file, or
remotely through a running relata server when --server is given.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.env, "env", "e", "dev", "Environment to use (dev, test, prod)")
	rootCmd.PersistentFlags().StringVarP(&opts.dataset, "dataset", "d", "", "Dataset file (overrides DATASET_PATH)")
	rootCmd.PersistentFlags().StringVarP(&opts.server, "server", "s", "", "Address of a relata server (host:port)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(
		newRelCmd(opts),
		newAttrCmd(opts, "get", "Get", "Read a plain attribute of the related records"),
		newAttrCmd(opts, "result", "Result", "Read a computed value or attribute of the related records"),
		newSetCmd(opts),
		newReloadCmd(opts),
	)

	return rootCmd
}

func newRelCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rel <collection> <id> <path>",
		Short: "Resolve a relation path from a record",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, "Resolve", map[string]any{
				"collection": args[0],
				"id":         args[1],
				"path":       args[2],
			})
		},
	}
}

func newAttrCmd(opts *options, use, method, short string) *cobra.Command {
	var (
		attr string
		def  string
	)

	cmd := &cobra.Command{
		Use:   use + " <collection> <id> <path>",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{
				"collection": args[0],
				"id":         args[1],
				"path":       args[2],
				"attr":       attr,
			}
			if cmd.Flags().Changed("default") {
				v, err := parseScalar(def)
				if err != nil {
					return err
				}
				req["default"] = v
			}
			return run(cmd, opts, method, req)
		},
	}

	cmd.Flags().StringVarP(&attr, "attr", "a", "", "Attribute or computed value to read")
	cmd.Flags().StringVar(&def, "default", "", "Value returned when the path resolves to null (YAML scalar)")
	_ = cmd.MarkFlagRequired("attr")

	return cmd
}

func newSetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set <collection> <path>",
		Short: "Resolve a to-one relation path from a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, "ResolveSet", map[string]any{
				"collection": args[0],
				"path":       args[1],
			})
		},
	}
}

func newReloadCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reload [table]",
		Short: "Reload table-backed collections",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{}
			if len(args) == 1 {
				req["table"] = args[0]
			}
			return run(cmd, opts, "Reload", req)
		},
	}
}

func run(cmd *cobra.Command, opts *options, method string, fields map[string]any) error {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	q, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer q.Close()

	resp, err := q.Call(ctx, method, req)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(resp.AsMap()); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return enc.Close()
}

func open(ctx context.Context, opts *options) (querier, error) {
	if opts.server != "" {
		conn, err := grpc.NewClient(opts.server, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", opts.server, err)
		}
		return &remoteQuerier{conn: conn, client: handlers.NewRelationServiceClient(conn)}, nil
	}

	if err := config.InitConfig(opts.env); err != nil {
		return nil, fmt.Errorf("failed to initialize config: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.dataset != "" {
		cfg.Relation.DatasetPath = opts.dataset
	}

	logger, err := logging.New(&cfg.Log)
	if err != nil {
		return nil, err
	}

	a, err := app.Open(ctx, cfg, logger, nil)
	if err != nil {
		return nil, err
	}
	return &localQuerier{app: a, handler: handlers.NewRelationHandler(a.Dataset, logger), logger: logger}, nil
}

// localQuerier answers from a dataset loaded in-process.
type localQuerier struct {
	app     *app.App
	handler *handlers.RelationHandler
	logger  *zap.Logger
}

func (q *localQuerier) Call(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	switch method {
	case "Resolve":
		return q.handler.Resolve(ctx, req)
	case "ResolveSet":
		return q.handler.ResolveSet(ctx, req)
	case "Get":
		return q.handler.Get(ctx, req)
	case "Result":
		return q.handler.Result(ctx, req)
	case "Reload":
		return q.handler.Reload(ctx, req)
	default:
		return nil, fmt.Errorf("unknown method %q", method)
	}
}

func (q *localQuerier) Close() error {
	_ = q.logger.Sync()
	return q.app.Close()
}

// remoteQuerier forwards calls to a relata server.
type remoteQuerier struct {
	conn   *grpc.ClientConn
	client *handlers.RelationServiceClient
}

func (q *remoteQuerier) Call(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	return q.client.Call(ctx, method, req)
}

func (q *remoteQuerier) Close() error {
	return q.conn.Close()
}

// parseScalar reads a flag value as a YAML scalar, so "3" is a number and
// "true" a boolean.
func parseScalar(s string) (any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("invalid default %q: %w", s, err)
	}
	switch v.(type) {
	case map[string]any, []any:
		return nil, fmt.Errorf("default must be a scalar, got %q", s)
	}
	return v, nil
}

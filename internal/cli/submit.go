package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/xela07ax/attendance-engine/internal/domain"
	"github.com/xela07ax/attendance-engine/internal/ingest"
)

func NewSubmitCmd(deps *Dependencies) *cobra.Command {
	var addr, token, name string
	var confidence float64

	cmd := &cobra.Command{
		Use:   "submit <person-id>",
		Short: "Send one recognition event over gRPC",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return fmt.Errorf("connecting to %s: %w", addr, err)
			}
			defer conn.Close()

			st, err := ingest.NewClient(conn, token).Submit(ctx, domain.RecognitionEvent{
				PersonID:   args[0],
				PersonName: name,
				DetectedAt: deps.Now(),
				Confidence: confidence,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", args[0], st, deps.Now().In(deps.Location).Format(time.DateTime))
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:50052", "gRPC ingest address")
	cmd.Flags().StringVar(&token, "token", "", "JWT with camera or admin role")
	cmd.Flags().StringVar(&name, "name", "", "Person name, used when the ID is not registered")
	cmd.Flags().Float64Var(&confidence, "confidence", 1, "Recognition confidence in [0, 1]")

	return cmd
}

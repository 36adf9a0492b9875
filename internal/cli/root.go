package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/xela07ax/attendance-engine/internal/domain"
)

// Source — офлайн-доступ к данным: ledger и реестр напрямую из БД
type Source interface {
	LoadAll(ctx context.Context) ([]domain.AttendanceEntry, error)
	ListPersons(ctx context.Context) ([]domain.Person, error)
}

type Dependencies struct {
	// Open подключается к хранилищу лениво: submit работает без БД
	Open        func(ctx context.Context) (Source, func(), error)
	Location    *time.Location
	DefaultDays int
	MaxDays     int // 0 — analytics.DefaultMaxDays
	Now         func() time.Time
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}

	rootCmd := &cobra.Command{
		Use:           "attendancectl",
		Short:         "Inspect and feed the attendance engine",
		Long:          "Offline reports over the attendance ledger and a gRPC client for submitting recognition events.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewReportCmd(deps))
	rootCmd.AddCommand(NewExportCmd(deps))
	rootCmd.AddCommand(NewPersonsCmd(deps))
	rootCmd.AddCommand(NewSubmitCmd(deps))

	return rootCmd
}

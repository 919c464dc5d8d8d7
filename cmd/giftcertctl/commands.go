package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/app"
	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/config"
	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/crm"
	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/gateway"
	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/models"
	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/service"
	"github.com/pr-poehali-dev/gift-certificate-sweep/pkg/logger"
)

const commandTimeout = 5 * time.Minute

func loadConfig(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.New("giftcertctl", cfg.Environment), nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the issuance table and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Retry deposits for issuances still pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			limit, _ := cmd.Flags().GetInt("limit")
			if limit <= 0 {
				limit = cfg.Reconcile.BatchSize
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Confirmations.ReconcileDeposits(ctx, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().IntP("limit", "n", 0, "Maximum issuances to retry (defaults to RECONCILE_BATCH_SIZE)")

	return cmd
}

func diagnoseCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "diagnose [" + strings.Join(service.DiagnosticActions, "|") + "]",
		Short:     "Call a CRM diagnostic endpoint",
		Args:      cobra.ExactArgs(1),
		ValidArgs: service.DiagnosticActions,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			certificates := service.NewCertificateService(crm.NewClient(cfg.CRM, log), nil, cfg, log)

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			result, ok := certificates.Diagnose(ctx, args[0])
			if !ok {
				return fmt.Errorf("unknown action %q, expected one of %s", args[0], strings.Join(service.DiagnosticActions, ", "))
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}

type orderReport struct {
	OrderID     string                     `json:"orderId"`
	OrderNumber string                     `json:"orderNumber"`
	OrderStatus int                        `json:"orderStatus"`
	StatusText  string                     `json:"statusText"`
	Paid        bool                       `json:"paid"`
	Amount      int64                      `json:"amount"`
	Request     *models.CertificateRequest `json:"request"`
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [orderId]",
		Short: "Show gateway status and recovered certificate request for an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			status, err := gateway.NewClient(cfg.Gateway, log).OrderStatus(ctx, args[0])
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), orderReport{
				OrderID:     args[0],
				OrderNumber: status.OrderNumber,
				OrderStatus: status.StatusCode(),
				StatusText:  models.StatusLabel(status.StatusCode()),
				Paid:        status.IsPaid(),
				Amount:      status.Amount,
				Request:     service.RecoverRequest(status),
			})
		},
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

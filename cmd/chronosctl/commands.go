package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"chronos-api/internal/app"
	"chronos-api/internal/engine"
	"chronos-api/internal/models"
)

type opener func(ctx context.Context, verbose bool) (*app.App, error)

type cli struct {
	out     io.Writer
	open    opener
	asJSON  bool
	verbose bool
	timeout time.Duration
}

func newRootCmd(out io.Writer, open opener) *cobra.Command {
	c := &cli{out: out, open: open}

	rootCmd := &cobra.Command{
		Use:     "chronosctl",
		Short:   "Operate the Chronos ledger",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&c.asJSON, "json", false, "print results as JSON")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "log at the configured level instead of warn")
	flags.DurationVar(&c.timeout, "timeout", 30*time.Second, "timeout for the whole command")

	rootCmd.AddCommand(
		c.bancosCmd(),
		c.saldoCmd(),
		c.totalesCmd(),
		c.movimientosCmd(),
		c.movimientoCmd("ingreso", "Record an income on a banco", models.TipoIngreso),
		c.movimientoCmd("gasto", "Record an expense on a banco", models.TipoGasto),
		c.transferirCmd(),
		c.reconcileCmd(),
	)
	return rootCmd
}

// run opens the ledger, runs fn and closes the ledger again
func (c *cli) run(cmd *cobra.Command, fn func(ctx context.Context, ledger *engine.LedgerEngine) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
	defer cancel()

	a, err := c.open(ctx, c.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	return fn(ctx, a.Engine)
}

func (c *cli) printJSON(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) table(header string, rows func(w io.Writer)) error {
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, header)
	rows(w)
	return w.Flush()
}

func (c *cli) bancosCmd() *cobra.Command {
	bancosCmd := &cobra.Command{
		Use:   "bancos",
		Short: "List and create bancos",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List every banco with its capital",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, ledger *engine.LedgerEngine) error {
				bancos, err := ledger.GetTodosBancos(ctx)
				if err != nil {
					return err
				}
				if c.asJSON {
					return c.printJSON(bancos)
				}
				return c.table("ID\tNOMBRE\tCAPITAL\tMONEDA", func(w io.Writer) {
					for _, b := range bancos {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.ID, b.Nombre, b.CapitalActual.StringFixed(2), b.Moneda)
					}
				})
			})
		},
	}

	var req models.NuevoBanco
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a banco with zero capital",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, ledger *engine.LedgerEngine) error {
				banco, err := ledger.CreateCuentaBancaria(ctx, req)
				if err != nil {
					return err
				}
				if c.asJSON {
					return c.printJSON(banco)
				}
				fmt.Fprintf(c.out, "created banco %s (%s)\n", banco.ID, banco.Nombre)
				return nil
			})
		},
	}
	createCmd.Flags().StringVar(&req.ID, "id", "", "banco id, generated when empty")
	createCmd.Flags().StringVar(&req.Nombre, "nombre", "", "display name")
	createCmd.Flags().StringVar(&req.Moneda, "moneda", "", "ISO currency code")

	bancosCmd.AddCommand(listCmd, createCmd)
	return bancosCmd
}

func (c *cli) saldoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "saldo",
		Short: "Print the total capital over every banco",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, ledger *engine.LedgerEngine) error {
				total, err := ledger.GetSaldoTotalBancos(ctx)
				if err != nil {
					return err
				}
				if c.asJSON {
					return c.printJSON(map[string]decimal.Decimal{"saldoTotal": total})
				}
				fmt.Fprintln(c.out, total.StringFixed(2))
				return nil
			})
		},
	}
}

func (c *cli) totalesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "totales <bancoId>",
		Short: "Print income and expense totals of a banco",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, ledger *engine.LedgerEngine) error {
				totales, err := ledger.CalcularTotalesBanco(ctx, args[0])
				if err != nil {
					return err
				}
				if c.asJSON {
					return c.printJSON(totales)
				}
				return c.table("INGRESOS\tGASTOS\tBALANCE\t#INGRESOS\t#GASTOS", func(w io.Writer) {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
						totales.TotalIngresos.StringFixed(2), totales.TotalGastos.StringFixed(2),
						totales.Balance.StringFixed(2), totales.CantidadIngresos, totales.CantidadGastos)
				})
			})
		},
	}
}

func (c *cli) movimientosCmd() *cobra.Command {
	var tipo string
	cmd := &cobra.Command{
		Use:   "movimientos <bancoId>",
		Short: "List the movements of a banco, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter models.TipoMovimiento
			if tipo != "" {
				parsed, err := models.ParseTipoMovimiento(tipo)
				if err != nil {
					return err
				}
				filter = parsed
			}

			return c.run(cmd, func(ctx context.Context, ledger *engine.LedgerEngine) error {
				movimientos, err := ledger.ListMovimientos(ctx, args[0], filter)
				if err != nil {
					return err
				}
				if c.asJSON {
					return c.printJSON(movimientos)
				}
				return c.table("ID\tTIPO\tMONTO\tFECHA\tCONCEPTO", func(w io.Writer) {
					for _, m := range movimientos {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
							m.ID, m.Tipo, m.Monto.StringFixed(2), m.Fecha.Format(time.RFC3339), m.Concepto)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&tipo, "tipo", "", "INGRESO or GASTO")
	return cmd
}

func (c *cli) movimientoCmd(use, short string, tipo models.TipoMovimiento) *cobra.Command {
	var (
		monto string
		req   models.NuevoMovimiento
	)
	cmd := &cobra.Command{
		Use:   use + " <bancoId>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(monto)
			if err != nil {
				return models.NewValidationError("monto", "must be a decimal number")
			}
			req.BancoID = args[0]
			req.Monto = amount

			return c.run(cmd, func(ctx context.Context, ledger *engine.LedgerEngine) error {
				crear := ledger.CrearIngreso
				if tipo == models.TipoGasto {
					crear = ledger.CrearGasto
				}
				movimiento, err := crear(ctx, req)
				if err != nil {
					return err
				}
				if c.asJSON {
					return c.printJSON(movimiento)
				}
				fmt.Fprintf(c.out, "recorded %s %s on %s\n", movimiento.Tipo, movimiento.Monto.StringFixed(2), movimiento.BancoID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&monto, "monto", "", "amount, positive")
	cmd.Flags().StringVar(&req.Concepto, "concepto", "", "description")
	cmd.Flags().StringVar(&req.Referencia, "referencia", "", "external reference")
	_ = cmd.MarkFlagRequired("monto")
	_ = cmd.MarkFlagRequired("concepto")
	return cmd
}

func (c *cli) transferirCmd() *cobra.Command {
	var (
		monto string
		req   models.Transferencia
	)
	cmd := &cobra.Command{
		Use:   "transferir",
		Short: "Move capital between two bancos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			amount, err := decimal.NewFromString(monto)
			if err != nil {
				return models.NewValidationError("monto", "must be a decimal number")
			}
			req.Monto = amount

			return c.run(cmd, func(ctx context.Context, ledger *engine.LedgerEngine) error {
				resultado, err := ledger.CrearTransferencia(ctx, req)
				if err != nil {
					return err
				}
				if c.asJSON {
					return c.printJSON(resultado)
				}
				fmt.Fprintf(c.out, "transfer %s committed\n", resultado.TransferenciaID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.OrigenID, "origen", "", "source banco id")
	cmd.Flags().StringVar(&req.DestinoID, "destino", "", "destination banco id")
	cmd.Flags().StringVar(&monto, "monto", "", "amount, positive")
	cmd.Flags().StringVar(&req.Concepto, "concepto", "", "description")
	cmd.Flags().StringVar(&req.IdempotencyKey, "idempotency-key", "", "repeat-safe key for retries")
	for _, name := range []string{"origen", "destino", "monto", "concepto"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (c *cli) reconcileCmd() *cobra.Command {
	var bancoID string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare stored capital with the movement log",
		Long:  "Compare stored capital with the movement log. Exits non-zero when a discrepancy is found. Nothing is modified.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, ledger *engine.LedgerEngine) error {
				var resultados []*engine.ReconciliationResult
				var output interface{}
				if bancoID != "" {
					resultado, err := ledger.ReconcileBanco(ctx, bancoID)
					if err != nil {
						return err
					}
					resultados = []*engine.ReconciliationResult{resultado}
					output = resultado
				} else {
					report, err := ledger.Reconcile(ctx)
					if err != nil {
						return err
					}
					resultados = report.Resultados
					output = report
				}

				if c.asJSON {
					if err := c.printJSON(output); err != nil {
						return err
					}
				} else if err := c.table("BANCO\tREGISTRADO\tCALCULADO\tDIFERENCIA\tSTATUS", func(w io.Writer) {
					for _, r := range resultados {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.BancoID,
							r.CapitalRegistrado.StringFixed(2), r.CapitalCalculado.StringFixed(2),
							r.Diferencia.StringFixed(2), r.Status)
					}
				}); err != nil {
					return err
				}

				failed := 0
				for _, r := range resultados {
					if r.Status != engine.ReconciliationOK {
						failed++
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d banco(s) did not reconcile", failed)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&bancoID, "banco", "", "reconcile only this banco")
	return cmd
}

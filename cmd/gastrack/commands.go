package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mmynk/gasbottle/internal/calculator"
	"github.com/mmynk/gasbottle/internal/exchange"
	"github.com/mmynk/gasbottle/internal/models"
	"github.com/mmynk/gasbottle/internal/syncer"
	"github.com/mmynk/gasbottle/internal/tracker"
)

func newAddCmd(c *cli) *cobra.Command {
	var cost float64

	cmd := &cobra.Command{
		Use:   "add DATE [COST]",
		Short: "Record a refill",
		Long: `Record a refill on DATE (YYYY-MM-DD). COST defaults to the configured bottle price.
A negative positional COST reads as a flag; use --cost or put -- before the arguments.`,
		Example: "  gastrack add 2024-01-01 80\n  gastrack add 2024-01-01 --cost 80",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			flagSet := cmd.Flags().Changed("cost")
			if flagSet && len(args) == 2 {
				return errors.New("cost given both as an argument and with --cost")
			}

			return c.withApp(cmd, func(a *app) error {
				value := cost
				switch {
				case len(args) == 2:
					v, err := strconv.ParseFloat(args[1], 64)
					if err != nil {
						return fmt.Errorf("%w: cost %q is not a number", models.ErrValidation, args[1])
					}
					value = v
				case !flagSet:
					_, settings := a.tracker.Snapshot()
					value = settings.BottlePrice
				}

				conn, err := a.tracker.Add(cmd.Context(), args[0], value)
				if errors.Is(err, models.ErrValidation) {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %d: %s %.2f\n", conn.ID, conn.Date, conn.Cost)
				return err
			})
		},
	}

	cmd.Flags().Float64Var(&cost, "cost", 0, "refill cost (defaults to the bottle price)")
	return cmd
}

func newRemoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"remove"},
		Short:   "Remove a refill",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			return c.withApp(cmd, func(a *app) error {
				ok, err := a.tracker.Remove(cmd.Context(), id)
				if !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "No connection %d\n", id)
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d\n", id)
				return err
			})
		},
	}
}

func newListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List refills, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app) error {
				conns, _ := a.tracker.Snapshot()
				return printConnections(cmd.OutOrStdout(), conns)
			})
		},
	}
}

func newClearCmd(c *cli) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every refill",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("clear removes every refill; pass --yes to confirm")
			}
			return c.withApp(cmd, func(a *app) error {
				if err := a.tracker.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm removing every refill")
	return cmd
}

func newSettingsCmd(c *cli) *cobra.Command {
	var weight, price float64
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the bottle weight and price",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app) error {
				_, settings := a.tracker.Snapshot()
				if cmd.Flags().Changed("weight") || cmd.Flags().Changed("price") {
					if cmd.Flags().Changed("weight") {
						settings.BottleWeight = weight
					}
					if cmd.Flags().Changed("price") {
						settings.BottlePrice = price
					}
					if err := a.tracker.UpdateSettings(cmd.Context(), settings.BottleWeight, settings.BottlePrice); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Bottle weight: %.2f kg\nBottle price:  %.2f\n",
					settings.BottleWeight, settings.BottlePrice)
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&weight, "weight", 0, "kilograms of gas per bottle")
	cmd.Flags().Float64Var(&price, "price", 0, "price of one bottle")
	return cmd
}

func newStatsCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show usage and cost statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app) error {
				stats := a.tracker.Stats()
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(stats)
				}
				printStats(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newReportCmd(c *cli) *cobra.Command {
	var from, to, out string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise refills in a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app) error {
				conns, settings := a.tracker.Snapshot()
				report, err := calculator.BuildReport(conns, from, to)
				if err != nil {
					return err
				}
				if out == "" {
					printReport(cmd.OutOrStdout(), report)
					return nil
				}
				data, err := exchange.MarshalReport(report, settings, time.Now())
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "end date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the report as JSON to this file")
	return cmd
}

func newExportCmd(c *cli) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export records, settings and statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app) error {
				data, err := exchange.MarshalExport(a.tracker.State(), time.Now())
				if err != nil {
					return err
				}
				if out == "" {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
					return err
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return fmt.Errorf("write export: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	return cmd
}

func newImportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Replace every record and the settings from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("%w: %v", models.ErrImport, err)
			}
			state, err := exchange.Import(data)
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(a *app) error {
				if err := a.tracker.Replace(cmd.Context(), state); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d connections\n", len(state.Connections))
				return nil
			})
		},
	}
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the user identity and sync status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app) error {
				remote := a.cfg.RemoteURL
				if remote == "" {
					remote = "(none)"
				}
				conns, _ := a.tracker.Snapshot()
				fmt.Fprintf(cmd.OutOrStdout(), "User:        %s\nRemote:      %s\nSync:        %s\nConnections: %d\n",
					a.userID, remote, a.sync.Status(), len(conns))
				return nil
			})
		},
	}
}

func newWatchCmd(c *cli) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stay connected and print remote changes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			c.onStatus = func(s syncer.Status) {
				fmt.Fprintf(out, "[%s] sync %s\n", time.Now().Format(time.Kitchen), s)
			}
			return c.withApp(cmd, func(a *app) error {
				a.tracker.OnChange(func(ch tracker.Change) {
					if ch.Kind == tracker.ChangeRemote {
						fmt.Fprintf(out, "[%s] remote update: %d connections\n",
							time.Now().Format(time.Kitchen), len(ch.State.Connections))
					}
				})

				if metricsAddr != "" {
					srv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}), ReadHeaderTimeout: 5 * time.Second}
					go func() {
						if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
							fmt.Fprintln(cmd.ErrOrStderr(), "metrics server:", err)
						}
					}()
					defer srv.Close()
				}

				<-cmd.Context().Done()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "serve Prometheus metrics on this address, e.g. :9091")
	return cmd
}

package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/mmynk/gasbottle/internal/calculator"
	"github.com/mmynk/gasbottle/internal/models"
)

func printConnections(w io.Writer, conns []models.Connection) error {
	if len(conns) == 0 {
		_, err := fmt.Fprintln(w, "No connections recorded")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tCOST")
	for _, c := range conns {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\n", c.ID, c.Date, c.Cost)
	}
	return tw.Flush()
}

func printStats(w io.Writer, s calculator.Stats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	row := func(label string, format string, v ...any) {
		fmt.Fprintf(tw, "%s\t"+format+"\n", append([]any{label}, v...)...)
	}

	row("Connections", "%d", s.TotalConnections)
	row("Total spent", "%.2f", s.TotalSpent)
	row("Average cost", "%.2f", s.AvgCost)
	row("Total gas", "%.1f kg", s.TotalGas)
	row("Daily rate", "%.2f", s.CostPerDay.DailyRate)
	row("Average days between", "%.1f", s.CostPerDay.DaysBetween)
	row("Days tracked", "%.0f", s.CostPerDay.TotalDays)
	row("Overall cost per day", "%.2f", s.OverallCostPerDay)
	row("Recent days between", "%.0f", s.RecentDaysBetween)
	row("Recent cost per day", "%.2f", s.RecentCostPerDay)
	row("Projected monthly", "%.2f", s.ProjectedMonthly)

	if s.CurrentVsPrevious.HasData {
		row("Current bottle", "%.0f days (%+.0f vs previous)", s.CurrentVsPrevious.CurrentDays, s.CurrentVsPrevious.DaysChange)
	}
	row("Gas per day", "%.2f kg", s.GasUsage.AvgGasPerDay)
	row("Gap trend", "%+.1f days", s.GasUsage.Trend)
	row("Median days", "%.1f", s.BottleAverages.MedianDays)
	row("Longest / shortest", "%.0f / %.0f days", s.BottleAverages.MostEfficientDays, s.BottleAverages.LeastEfficientDays)
	row("Cost per kg", "%.2f", s.Comprehensive.CostPerKg)
	row("Projected annual spend", "%.2f", s.Comprehensive.ProjectedAnnualSpend)
	row("Efficiency", "%s (%.0f)", s.Efficiency.Rating, s.Efficiency.Score)
}

func printReport(w io.Writer, r *calculator.Report) {
	fmt.Fprintf(w, "Report %s to %s (%.0f days)\n\n", r.StartDate, r.EndDate, r.Stats.PeriodDays)
	_ = printConnections(w, r.Connections)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "Connections\t%d\n", r.Stats.TotalConnections)
	fmt.Fprintf(tw, "Total spent\t%.2f\n", r.Stats.TotalSpent)
	fmt.Fprintf(tw, "Average cost\t%.2f\n", r.Stats.AvgCost)
	fmt.Fprintf(tw, "Cost per day\t%.2f\n", r.Stats.CostPerDay)
	fmt.Fprintf(tw, "Projected annual\t%.2f\n", r.Stats.ProjectedAnnual)
}

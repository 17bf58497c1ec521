package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"tradeeval/internal/calibration"
	"tradeeval/internal/drift"
	"tradeeval/internal/service"
)

type queryFlags struct {
	since   string
	until   string
	mode    string
	segment string
}

func (q *queryFlags) bind(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&q.since, "since", "", "window start (RFC3339 or YYYY-MM-DD)")
	cmd.PersistentFlags().StringVar(&q.until, "until", "", "window end (RFC3339 or YYYY-MM-DD)")
	cmd.PersistentFlags().StringVar(&q.mode, "mode", "", "league mode filter")
	cmd.PersistentFlags().StringVar(&q.segment, "segment", "", "segment key filter (format|scoring|mode)")
}

func (q *queryFlags) query() (service.CalibrationQuery, error) {
	out := service.CalibrationQuery{Mode: q.mode, Segment: q.segment}
	since, err := parseTime(q.since)
	if err != nil {
		return out, fmt.Errorf("--since: %w", err)
	}
	until, err := parseTime(q.until)
	if err != nil {
		return out, fmt.Errorf("--until: %w", err)
	}
	out.Since, out.Until = since, until
	return out, nil
}

func parseTime(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func fmtPtr(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 4, 64)
}

func fmtF(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func reportCmd(a func() *app, q *queryFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Global calibration report with the reliability table",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := q.query()
			if err != nil {
				return err
			}
			sum, err := a().calib.Summary(cmd.Context(), query)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			rep := sum.Report
			fmt.Fprintf(out, "weights v%d  resolved=%d pending=%d base_rate=%s mean_pred=%s\n",
				sum.WeightsVersion, rep.N, sum.Pending, fmtF(rep.BaseRate), fmtF(rep.MeanPred))
			fmt.Fprintf(out, "ECE=%s (%s)  Brier=%s (%s)\n",
				fmtPtr(rep.ECE), rep.ECEStatus, fmtPtr(rep.Brier), rep.BrierStatus)
			printReliability(out, rep)
			return nil
		},
	}
}

func printReliability(out io.Writer, rep calibration.Report) {
	table := tablewriter.NewWriter(out)
	table.Header("Bucket", "Count", "Mean pred", "Observed")
	for _, b := range rep.Reliability {
		table.Append(
			fmt.Sprintf("[%.1f, %.1f)", b.Lower, b.Upper),
			strconv.Itoa(b.Count),
			fmtF(b.MeanPredicted),
			fmtF(b.ObservedRate),
		)
	}
	table.Render()
}

func segmentsCmd(a func() *app, q *queryFlags) *cobra.Command {
	var worstOnly bool
	cmd := &cobra.Command{
		Use:   "segments",
		Short: "Per-segment calibration and intercept drift",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := q.query()
			if err != nil {
				return err
			}
			rep, err := a().calib.Segments(cmd.Context(), query)
			if err != nil {
				return err
			}
			items := rep.Segments
			if worstOnly {
				items = rep.Worst
			}
			printSegments(cmd.OutOrStdout(), items)
			return nil
		},
	}
	cmd.Flags().BoolVar(&worstOnly, "worst", false, "only list the worst segments")
	return cmd
}

func printSegments(out io.Writer, items []drift.SegmentMetrics) {
	table := tablewriter.NewWriter(out)
	table.Header("Segment", "N", "ECE", "Brier", "Observed", "Predicted", "Delta", "Status")
	for _, s := range items {
		status := string(s.ECEStatus)
		if s.InterceptState != "" && s.InterceptState != calibration.StatusGood {
			status += "/" + string(s.InterceptState)
		}
		table.Append(
			s.SegmentKey,
			strconv.Itoa(s.N),
			fmtPtr(s.ECE),
			fmtPtr(s.Brier),
			fmtF(s.ObservedRate),
			fmtF(s.PredictedMean),
			fmtPtr(s.InterceptDelta),
			status,
		)
	}
	table.Render()
}

func driftCmd(a func() *app, q *queryFlags) *cobra.Command {
	var feature string
	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Feature distribution drift (PSI and JSD) between consecutive windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := q.query()
			if err != nil {
				return err
			}
			rep, err := a().calib.Drift(cmd.Context(), query, feature)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "window end %s\n", rep.WindowEnd.Format(time.RFC3339))
			table := tablewriter.NewWriter(out)
			table.Header("Feature", "Baseline N", "Current N", "PSI", "JSD", "Status")
			for _, f := range rep.Features {
				table.Append(f.Feature, strconv.Itoa(f.BaselineN), strconv.Itoa(f.CurrentN), fmtPtr(f.PSI), fmtPtr(f.JSD), string(f.Status))
			}
			table.Render()

			if len(rep.Series) > 0 {
				series := tablewriter.NewWriter(out)
				series.Header("Window", "N", "PSI", "Status")
				for _, p := range rep.Series {
					series.Append(
						p.WindowStart.Format("2006-01-02")+".."+p.WindowEnd.Format("2006-01-02"),
						strconv.Itoa(p.CurrentN),
						fmtPtr(p.PSI),
						string(p.Status),
					)
				}
				series.Render()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&feature, "feature", "", "feature to chart over time ("+strings.Join(service.DriftFeatures(), ", ")+")")
	return cmd
}

func alertsCmd(a func() *app, q *queryFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "alerts",
		Short: "Current calibration and drift alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := q.query()
			if err != nil {
				return err
			}
			alerts, err := a().calib.Alerts(cmd.Context(), query)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(alerts) == 0 {
				fmt.Fprintln(out, "no alerts")
				return nil
			}
			table := tablewriter.NewWriter(out)
			table.Header("Severity", "Reason", "Scope", "Value", "Action")
			for _, al := range alerts {
				scope := al.Segment
				if al.Feature != "" {
					scope = al.Feature
				}
				table.Append(string(al.Severity), al.Reason, scope, fmtF(al.Value), al.SuggestedAction)
			}
			table.Render()
			return nil
		},
	}
}

func interceptsCmd(a func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "intercepts",
		Short: "Active weights, segment intercepts, shadows and promotion history",
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := a().calib.Intercepts(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "active v%d b0=%s source=%s normalization=%s\n",
				rep.Active.Version, fmtF(rep.Active.B0), rep.Active.Source, rep.Active.NormalizationVersion)

			segs := tablewriter.NewWriter(out)
			segs.Header("Segment", "b0", "Sample", "Computed")
			for _, s := range rep.Segments {
				segs.Append(s.Key, fmtF(s.B0), strconv.Itoa(s.SampleSize), s.ComputedAt.Format(time.RFC3339))
			}
			segs.Render()

			shadows := tablewriter.NewWriter(out)
			shadows.Header("Shadow", "State", "b0", "Base", "Sample", "Divergence", "Reason")
			for _, s := range rep.Shadows {
				shadows.Append(
					strconv.FormatUint(s.ID, 10),
					s.State,
					fmtF(s.B0),
					fmt.Sprintf("v%d", s.BaseVersion),
					strconv.Itoa(s.SampleSize),
					fmtF(s.Divergence),
					s.Reason,
				)
			}
			shadows.Render()

			promos := tablewriter.NewWriter(out)
			promos.Header("At", "From", "To", "Old b0", "New b0", "Source", "Note")
			for _, p := range rep.Promotions {
				promos.Append(
					p.CreatedAt.Format(time.RFC3339),
					fmt.Sprintf("v%d", p.OldVersion),
					fmt.Sprintf("v%d", p.NewVersion),
					fmtF(p.OldB0),
					fmtF(p.NewB0),
					p.Source,
					p.Note,
				)
			}
			promos.Render()
			return nil
		},
	}
}

func recalibrateCmd(a func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "recalibrate",
		Short: "Run one recalibration cycle now",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a().recal.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "state=%s", res.State)
			if res.Reason != "" {
				fmt.Fprintf(out, " reason=%s", res.Reason)
			}
			if res.PromotedVersion != nil {
				fmt.Fprintf(out, " promoted=v%d", *res.PromotedVersion)
			}
			if res.Shadow != nil {
				fmt.Fprintf(out, " shadow_b0=%s sample=%d", fmtF(res.Shadow.B0), res.Shadow.SampleSize)
			}
			fmt.Fprintf(out, " segments_refreshed=%t\n", res.SegmentsRefreshed)
			return nil
		},
	}
}

func rollbackCmd(a func() *app) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "rollback VERSION",
		Short: "Re-activate an older weights version as a new version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("version must be an integer: %w", err)
			}
			w, err := a().recal.Rollback(cmd.Context(), version, note)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "active v%d b0=%s (from v%d)\n", w.Version, fmtF(w.B0), version)
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "reason recorded on the promotion record")
	return cmd
}

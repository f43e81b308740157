// Package report renders the acceptance results for a terminal or for tooling.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prife/adbcheck/acceptance"
	"github.com/prife/adbcheck/config"
	"github.com/prife/adbcheck/harness"
)

var ErrUnknownFormat = errors.New("UnknownFormat")

func unknownFormat(format string) error {
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

// RenderHarness prints a reboot run. The counters keep the names downstream
// tooling greps for: TestCount, TestConSuccessCount and TestConFailCount.
func RenderHarness(w io.Writer, r *harness.Report, format string) error {
	switch format {
	case config.FormatJSON:
		return writeJSON(w, r)
	case config.FormatTable:
		t := newTable(w)
		t.SetTitle("Reboot test %s (%s)", r.Interface, r.RunID)
		t.AppendHeader(table.Row{"Metric", "Value"})
		t.AppendRows([]table.Row{
			{"TestCount", r.TotalCycles},
			{"TestConSuccessCount", r.SuccessCount},
			{"TestConFailCount", r.FailureCount},
			{"Success rate", fmt.Sprintf("%.2f%%", r.SuccessRate()*100)},
			{"Elapsed", r.Elapsed().Round(time.Second)},
		})
		if r.Canceled {
			t.AppendFooter(table.Row{"canceled", fmt.Sprintf("after %d cycles", r.TotalCycles)})
		}
		t.Render()
		if len(r.Failed) == 0 {
			return nil
		}
		f := newTable(w)
		f.SetTitle("Failed cycles")
		f.AppendHeader(table.Row{"#", "Time", "Outcome", "Error"})
		for _, c := range r.Failed {
			f.AppendRow(table.Row{c.Index, c.Timestamp.Format(time.DateTime), c.Outcome, c.Err})
		}
		f.Render()
		return nil
	case config.FormatMarkdown:
		fmt.Fprintf(w, "### Reboot test %s (%s)\n\n", r.Interface, r.RunID)
		fmt.Fprintln(w, "| Metric | Value |")
		fmt.Fprintln(w, "|--------|-------|")
		fmt.Fprintf(w, "| TestCount | %d |\n", r.TotalCycles)
		fmt.Fprintf(w, "| TestConSuccessCount | %d |\n", r.SuccessCount)
		fmt.Fprintf(w, "| TestConFailCount | %d |\n", r.FailureCount)
		fmt.Fprintf(w, "| Success rate | %.2f%% |\n", r.SuccessRate()*100)
		fmt.Fprintf(w, "| Elapsed | %s |\n", r.Elapsed().Round(time.Second))
		if r.Canceled {
			fmt.Fprintf(w, "| Canceled | after %d cycles |\n", r.TotalCycles)
		}
		if len(r.Failed) == 0 {
			return nil
		}
		fmt.Fprint(w, "\n#### Failed cycles\n\n")
		fmt.Fprintln(w, "| # | Time | Outcome | Error |")
		fmt.Fprintln(w, "|---|------|---------|-------|")
		for _, c := range r.Failed {
			fmt.Fprintf(w, "| %d | %s | %s | %s |\n", c.Index, c.Timestamp.Format(time.DateTime), c.Outcome, c.Err)
		}
		return nil
	case config.FormatText, "":
		fmt.Fprintf(w, "TestCount: %d\n", r.TotalCycles)
		fmt.Fprintf(w, "TestConSuccessCount: %d\n", r.SuccessCount)
		fmt.Fprintf(w, "TestConFailCount: %d\n", r.FailureCount)
		fmt.Fprintf(w, "SuccessRate: %.2f%%\n", r.SuccessRate()*100)
		if r.Canceled {
			fmt.Fprintln(w, "Canceled: true")
		}
		for _, c := range r.Failed {
			fmt.Fprintf(w, "cycle %d %s: %s", c.Index, c.Outcome, c.Err)
			if c.RawInterfaceDump != "" {
				fmt.Fprintf(w, "\n%s", indent(c.RawInterfaceDump, "    "))
			}
			fmt.Fprintln(w)
		}
		return nil
	default:
		return unknownFormat(format)
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	return prefix + strings.Join(lines, "\n"+prefix)
}

type pingRow struct {
	Host        string    `json:"host"`
	Mean        float64   `json:"mean_ms"`
	Median      float64   `json:"median_ms"`
	Min         float64   `json:"min_ms"`
	Max         float64   `json:"max_ms"`
	Transmitted int       `json:"packets_transmitted"`
	Received    int       `json:"packets_received"`
	LossPercent float64   `json:"packet_loss_percent"`
	Samples     []float64 `json:"samples_ms"`
	Err         string    `json:"error,omitempty"`
}

func toPingRow(r acceptance.LatencyResult) pingRow {
	row := pingRow{
		Host:        r.Host,
		Mean:        r.Mean(),
		Median:      r.Median(),
		Min:         r.Min(),
		Max:         r.Max(),
		Transmitted: r.Transmitted,
		Received:    r.Received,
		LossPercent: r.LossPercent,
		Samples:     r.Samples,
	}
	if r.Err != nil {
		row.Err = r.Err.Error()
	}
	return row
}

// RenderPing prints the latency statistics of every endpoint.
func RenderPing(w io.Writer, results []acceptance.LatencyResult, format string) error {
	switch format {
	case config.FormatJSON:
		rows := make([]pingRow, 0, len(results))
		for _, r := range results {
			rows = append(rows, toPingRow(r))
		}
		return writeJSON(w, rows)
	case config.FormatTable:
		t := newTable(w)
		t.AppendHeader(table.Row{"Host", "Mean (ms)", "Median (ms)", "Min (ms)", "Max (ms)", "Transmitted", "Received", "Loss", "Error"})
		for _, r := range results {
			row := toPingRow(r)
			t.AppendRow(table.Row{
				row.Host,
				fmt.Sprintf("%.2f", row.Mean),
				fmt.Sprintf("%.2f", row.Median),
				fmt.Sprintf("%.2f", row.Min),
				fmt.Sprintf("%.2f", row.Max),
				row.Transmitted,
				row.Received,
				fmt.Sprintf("%.1f%%", row.LossPercent),
				row.Err,
			})
		}
		t.Render()
		return nil
	case config.FormatMarkdown, config.FormatText, "":
		for i, r := range results {
			if i > 0 {
				fmt.Fprintln(w)
			}
			row := toPingRow(r)
			fmt.Fprintf(w, "### %s\n\n", row.Host)
			fmt.Fprintln(w, "| Statistic | Value |")
			fmt.Fprintln(w, "|-----------|-------|")
			fmt.Fprintf(w, "| Mean | %.2f ms |\n", row.Mean)
			fmt.Fprintf(w, "| Median | %.2f ms |\n", row.Median)
			fmt.Fprintf(w, "| Min | %.2f ms |\n", row.Min)
			fmt.Fprintf(w, "| Max | %.2f ms |\n", row.Max)
			fmt.Fprintf(w, "| Packets Transmitted | %d |\n", row.Transmitted)
			fmt.Fprintf(w, "| Packets Received | %d |\n", row.Received)
			fmt.Fprintf(w, "| Packet Loss | %.1f%% |\n", row.LossPercent)
			if row.Err != "" {
				fmt.Fprintf(w, "| Error | %s |\n", row.Err)
			}
		}
		return nil
	default:
		return unknownFormat(format)
	}
}

// RenderDeviceInfo prints the device identity, sizes in GB.
func RenderDeviceInfo(w io.Writer, info *acceptance.DeviceInfo, format string) error {
	switch format {
	case config.FormatJSON:
		return writeJSON(w, info)
	case config.FormatTable, config.FormatText, config.FormatMarkdown, "":
	default:
		return unknownFormat(format)
	}

	rows := []table.Row{
		{"Serial", info.Serial},
		{"Manufacturer", info.Manufacturer},
		{"Model", info.Model},
		{"Device name", info.Name},
		{"Android version", info.AndroidVersion},
		{"SDK level", info.SdkLevel},
		{"Build ID", info.BuildID},
		{"Fingerprint", info.Fingerprint},
		{"Kernel", info.KernelVersion},
		{"RAM", fmt.Sprintf("%.2f GB", acceptance.GB(info.RAMBytes))},
		{"Storage (/data)", fmt.Sprintf("%.2f GB", acceptance.GB(info.StorageBytes))},
		{"Uptime", info.Uptime.Round(time.Second)},
		{"Rooted", info.Rooted},
		{"Foreground", info.Foreground},
		{"Third-party apps", info.ThirdPartyApps},
	}
	if format == config.FormatTable {
		t := newTable(w)
		t.AppendHeader(table.Row{"Property", "Value"})
		t.AppendRows(rows)
		t.Render()
		return nil
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%s: %v\n", r[0], r[1])
	}
	return nil
}

type installRow struct {
	Apk      string `json:"apk"`
	Size     int64  `json:"size"`
	Duration string `json:"duration"`
	Status   string `json:"status"`
	Err      string `json:"error,omitempty"`
}

// RenderInstall prints one line per apk.
func RenderInstall(w io.Writer, results []acceptance.InstallResult, format string) error {
	rows := make([]installRow, 0, len(results))
	failed := 0
	for _, r := range results {
		row := installRow{
			Apk:      filepath.Base(r.Path),
			Size:     r.Size,
			Duration: r.Duration.Round(time.Millisecond).String(),
			Status:   "Success",
		}
		if r.Err != nil {
			failed++
			row.Status = "Failure"
			row.Err = r.Err.Error()
		}
		rows = append(rows, row)
	}

	switch format {
	case config.FormatJSON:
		return writeJSON(w, rows)
	case config.FormatTable:
		t := newTable(w)
		t.AppendHeader(table.Row{"APK", "Size", "Duration", "Status", "Error"})
		for _, r := range rows {
			t.AppendRow(table.Row{r.Apk, r.Size, r.Duration, r.Status, r.Err})
		}
		t.AppendFooter(table.Row{"Total", len(rows), "", fmt.Sprintf("%d failed", failed), ""})
		t.Render()
		return nil
	case config.FormatText, config.FormatMarkdown, "":
		for _, r := range rows {
			fmt.Fprintf(w, "%s: %s (%d bytes, %s)", r.Apk, r.Status, r.Size, r.Duration)
			if r.Err != "" {
				fmt.Fprintf(w, ": %s", r.Err)
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "installed %d/%d\n", len(rows)-failed, len(rows))
		return nil
	default:
		return unknownFormat(format)
	}
}

// RenderCapture prints where the clip went.
func RenderCapture(w io.Writer, res *acceptance.CaptureResult, format string) error {
	switch format {
	case config.FormatJSON:
		return writeJSON(w, res)
	case config.FormatTable:
		t := newTable(w)
		t.AppendHeader(table.Row{"Camera", "Nodes"})
		for _, d := range res.Devices {
			t.AppendRow(table.Row{d.Card, strings.Join(d.Nodes, " ")})
		}
		t.AppendFooter(table.Row{res.LocalPath, fmt.Sprintf("%d bytes", res.Size)})
		t.Render()
		return nil
	case config.FormatText, config.FormatMarkdown, "":
		for _, d := range res.Devices {
			fmt.Fprintf(w, "camera: %s %s\n", d.Card, strings.Join(d.Nodes, " "))
		}
		fmt.Fprintf(w, "capture: %s, %d bytes\n", res.LocalPath, res.Size)
		return nil
	default:
		return unknownFormat(format)
	}
}

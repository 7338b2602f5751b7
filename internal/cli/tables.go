package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/Veraticus/spice-reconcile/internal/format"
	"github.com/Veraticus/spice-reconcile/internal/model"
	"github.com/Veraticus/spice-reconcile/internal/review"
	"github.com/Veraticus/spice-reconcile/internal/storage"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func flushTable(tw *tabwriter.Writer) {
	if err := tw.Flush(); err != nil {
		slog.Error("failed to flush table writer", "error", err)
	}
}

func writeRow(tw io.Writer, cells ...string) error {
	_, err := fmt.Fprintln(tw, strings.Join(cells, "\t"))
	return err
}

func writeHeader(tw io.Writer, widths []int, names ...string) error {
	header := make([]string, len(names))
	rule := make([]string, len(names))
	for i, name := range names {
		header[i] = TableHeaderStyle.UnsetBorderBottom().Render(name)
		rule[i] = strings.Repeat("─", widths[i])
	}
	if err := writeRow(tw, header...); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := writeRow(tw, rule...); err != nil {
		return fmt.Errorf("failed to write separator: %w", err)
	}
	return nil
}

// RenderBatches writes a table of import batches.
func RenderBatches(w io.Writer, batches []model.Batch) error {
	if len(batches) == 0 {
		_, err := fmt.Fprintln(w, InfoStyle.Render("No import batches found. Use 'reconcile import' to add one."))
		return err
	}

	tw := newTable(w)
	defer flushTable(tw)

	if err := writeHeader(tw, []int{8, 20, 16, 10, 12, 10}, "ID", "File", "Institution", "Status", "Transactions", "Imported"); err != nil {
		return err
	}
	for _, b := range batches {
		if err := writeRow(tw,
			b.ID,
			b.Filename,
			b.InstitutionName,
			statusLabel(string(b.Status)),
			fmt.Sprintf("%d/%d", b.ProcessedTransactions, b.TotalTransactions),
			format.Date(b.CreatedAt),
		); err != nil {
			return fmt.Errorf("failed to write batch row: %w", err)
		}
	}
	return nil
}

// RenderCheckpoints writes a table of database checkpoints.
func RenderCheckpoints(w io.Writer, checkpoints []storage.CheckpointInfo) error {
	if len(checkpoints) == 0 {
		_, err := fmt.Fprintln(w, InfoStyle.Render("No checkpoints found. Use 'reconcile checkpoint create' to add one."))
		return err
	}

	tw := newTable(w)
	defer flushTable(tw)

	if err := writeHeader(tw, []int{24, 16, 8, 12, 9, 30}, "ID", "Created", "Batches", "Transactions", "Size", "Description"); err != nil {
		return err
	}
	for _, cp := range checkpoints {
		id := cp.ID
		if cp.IsAuto {
			id += " (auto)"
		}
		if err := writeRow(tw,
			id,
			cp.CreatedAt.Local().Format("2006-01-02 15:04"),
			strconv.Itoa(cp.Batches),
			fmt.Sprintf("%d (%d pending)", cp.Transactions, cp.Pending),
			fmt.Sprintf("%.1f KB", float64(cp.FileSize)/1024),
			cp.Description,
		); err != nil {
			return fmt.Errorf("failed to write checkpoint row: %w", err)
		}
	}
	return nil
}

// RenderTransactions writes a table of transactions.
func RenderTransactions(w io.Writer, txns []model.Transaction, money *format.Money) error {
	tw := newTable(w)
	defer flushTable(tw)

	if err := writeHeader(tw, []int{4, 10, 30, 14, 16, 10}, "#", "Date", "Description", "Amount", "Category", "Status"); err != nil {
		return err
	}
	for i, t := range txns {
		if err := writeRow(tw,
			strconv.Itoa(i+1),
			format.Date(t.Date),
			t.Description,
			AmountStyle(t.Amount).Render(money.Format(t.Amount)),
			t.EffectiveCategory(),
			statusLabel(string(t.ReviewStatus)),
		); err != nil {
			return fmt.Errorf("failed to write transaction row: %w", err)
		}
	}
	return nil
}

// RenderGroups writes each duplicate group, marking the selected keep.
func RenderGroups(w io.Writer, groups []model.DuplicateGroup, selection map[int]string, money *format.Money) error {
	if len(groups) == 0 {
		_, err := fmt.Fprintln(w, FormatSuccess("No duplicates found."))
		return err
	}

	for gi, g := range groups {
		title := fmt.Sprintf("Group %d · %s · %d transactions", gi+1, money.Format(g.Amount), g.Count)
		if _, err := fmt.Fprintln(w, FormatTitle(title)); err != nil {
			return err
		}

		tw := newTable(w)
		for ti, t := range g.Transactions {
			marker := " "
			if selection[gi] == t.ID {
				marker = KeepIcon
			}
			if err := writeRow(tw,
				marker,
				strconv.Itoa(ti+1),
				format.Date(t.Date),
				t.Description,
				SubtleStyle.Render("batch "+t.BatchID),
			); err != nil {
				flushTable(tw)
				return fmt.Errorf("failed to write group row: %w", err)
			}
		}
		flushTable(tw)

		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

// RenderStats writes a one-line review summary.
func RenderStats(w io.Writer, stats review.Stats) error {
	_, err := fmt.Fprintf(w, "%s  %s  %s  %s\n",
		fmt.Sprintf("Total: %d", stats.Total),
		WarningStyle.Render(fmt.Sprintf("Pending: %d", stats.Pending)),
		SuccessStyle.Render(fmt.Sprintf("Approved: %d", stats.Approved)),
		ErrorStyle.Render(fmt.Sprintf("Rejected: %d", stats.Rejected)))
	return err
}

func statusLabel(status string) string {
	return StatusStyle(status).Render(status)
}

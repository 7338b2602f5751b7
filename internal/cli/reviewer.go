package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/Veraticus/spice-reconcile/internal/common"
	"github.com/Veraticus/spice-reconcile/internal/format"
	"github.com/Veraticus/spice-reconcile/internal/model"
	"github.com/Veraticus/spice-reconcile/internal/reconcile"
	"github.com/Veraticus/spice-reconcile/internal/review"
	"github.com/schollz/progressbar/v3"
)

// Reviewer walks a user through the pending transactions of a batch, one
// prompt per transaction.
type Reviewer struct {
	writer      io.Writer
	reader      *LineReader
	rec         *reconcile.Reconciler
	money       *format.Money
	progressBar *progressbar.ProgressBar
}

// NewReviewer creates a reviewer. Nil reader and writer default to stdin and stdout.
func NewReviewer(rec *reconcile.Reconciler, money *format.Money, reader io.Reader, writer io.Writer) *Reviewer {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}
	return &Reviewer{
		writer: writer,
		reader: NewLineReader(reader),
		rec:    rec,
		money:  money,
	}
}

// Review loads a batch and prompts for each pending transaction whose
// description contains search. It returns the batch's stats afterwards.
func (p *Reviewer) Review(ctx context.Context, batchID, search string) (review.Stats, error) {
	if err := p.rec.LoadBatch(ctx, batchID); err != nil {
		return review.Stats{}, err
	}

	queue := model.IDs(review.Filter(p.rec.Transactions(), model.StatusPending, search))
	if len(queue) == 0 {
		p.println(FormatSuccess("Nothing left to review."))
		stats := review.Summarize(p.rec.Transactions())
		return stats, RenderStats(p.writer, stats)
	}

	p.initProgressBar(len(queue))
	for _, id := range queue {
		txn, ok := p.lookup(id)
		if !ok || txn.ReviewStatus != model.StatusPending {
			p.updateProgress()
			continue
		}

		quit, err := p.reviewOne(ctx, txn)
		if err != nil {
			return review.Summarize(p.rec.Transactions()), err
		}
		p.updateProgress()
		if quit {
			break
		}
	}

	p.println("")
	stats := review.Summarize(p.rec.Transactions())
	return stats, RenderStats(p.writer, stats)
}

// reviewOne prompts until the transaction is handled or skipped.
func (p *Reviewer) reviewOne(ctx context.Context, txn model.Transaction) (bool, error) {
	p.println("")
	p.println(RenderBox("Transaction Review", p.formatTransaction(txn)))
	p.println(FormatPrompt("Options:"))
	p.println("  [A] Approve   [R] Reject   [C] Change category")
	p.println("  [D] Delete    [S] Skip     [Q] Quit")

	for {
		choice, err := p.promptChoice(ctx, "Choice", []string{"a", "r", "c", "d", "s", "q"})
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			return false, err
		}

		var actionErr error
		switch choice {
		case "s":
			return false, nil
		case "q":
			return true, nil
		case "c":
			category, err := p.promptCategory(ctx)
			if errors.Is(err, io.EOF) {
				return true, nil
			}
			if err != nil {
				return false, err
			}
			p.rec.SetCategory(txn.ID, category)
			p.println(FormatInfo("Category set to " + category))
			continue
		case "d":
			actionErr = p.rec.DeleteOne(ctx, txn.ID)
		case "a":
			_, actionErr = p.rec.ReviewOne(ctx, txn.ID, "", model.StatusApproved)
		case "r":
			_, actionErr = p.rec.ReviewOne(ctx, txn.ID, "", model.StatusRejected)
		}

		switch {
		case actionErr == nil:
			p.println(FormatSuccess(actionLabel(choice)))
			return false, nil
		case common.IsValidation(actionErr):
			p.println(FormatError(actionErr.Error()))
		case errors.Is(actionErr, context.Canceled):
			return false, actionErr
		default:
			slog.Debug("Review action failed", "transaction_id", txn.ID, "error", actionErr)
			p.println(FormatError(common.RemoteMessage(actionErr)))
			return false, nil
		}
	}
}

func actionLabel(choice string) string {
	switch choice {
	case "a":
		return "Approved"
	case "r":
		return "Rejected"
	default:
		return "Deleted"
	}
}

func (p *Reviewer) formatTransaction(txn model.Transaction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  Date: %s\n", format.Date(txn.Date))
	fmt.Fprintf(&b, "  Amount: %s\n", AmountStyle(txn.Amount).Render(p.money.Format(txn.Amount)))
	fmt.Fprintf(&b, "  Description: %s", txn.Description)

	if txn.PredictedCategory != nil {
		suggestion := *txn.PredictedCategory
		if txn.ConfidenceScore != nil {
			suggestion += fmt.Sprintf(" (%.0f%% confidence)", *txn.ConfidenceScore*100)
		}
		fmt.Fprintf(&b, "\n\n  Suggested: %s", SuccessStyle.Render(suggestion))
	}
	if draft, ok := p.rec.Drafts()[txn.ID]; ok && draft != txn.EffectiveCategory() {
		fmt.Fprintf(&b, "\n  Category: %s", WarningStyle.Render(draft))
	}
	return b.String()
}

func (p *Reviewer) promptChoice(ctx context.Context, prompt string, validChoices []string) (string, error) {
	for {
		if _, err := fmt.Fprintf(p.writer, "%s ", FormatPrompt(prompt)); err != nil {
			return "", fmt.Errorf("failed to write prompt: %w", err)
		}

		input, err := p.reader.ReadLine(ctx)
		if err != nil {
			return "", err
		}

		choice := strings.ToLower(input)
		for _, valid := range validChoices {
			if choice == valid {
				return choice, nil
			}
		}

		p.println(FormatError("Invalid choice. Please try again."))
	}
}

func (p *Reviewer) promptCategory(ctx context.Context) (string, error) {
	if known := p.knownCategories(); len(known) > 0 {
		p.println(FormatInfo("Known categories: " + strings.Join(known, ", ")))
	}

	for {
		if _, err := fmt.Fprintf(p.writer, "%s ", FormatPrompt("Category")); err != nil {
			return "", fmt.Errorf("failed to write prompt: %w", err)
		}
		category, err := p.reader.ReadLine(ctx)
		if err != nil {
			return "", err
		}
		if category != "" {
			return category, nil
		}
		p.println(FormatError(common.ErrMissingCategory.Error()))
	}
}

func (p *Reviewer) knownCategories() []string {
	seen := make(map[string]bool)
	for _, t := range p.rec.Transactions() {
		if c := t.EffectiveCategory(); c != "" {
			seen[c] = true
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (p *Reviewer) lookup(id string) (model.Transaction, bool) {
	for _, t := range p.rec.Transactions() {
		if t.ID == id {
			return t, true
		}
	}
	return model.Transaction{}, false
}

func (p *Reviewer) initProgressBar(total int) {
	p.progressBar = NewProgressBar(p.writer, total, "Reviewing transactions...")
}

// NewProgressBar creates the progress bar used by long-running commands.
func NewProgressBar(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]"+description+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(w); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

func (p *Reviewer) updateProgress() {
	if p.progressBar == nil {
		return
	}
	if err := p.progressBar.Add(1); err != nil {
		slog.Debug("Failed to update progress bar", "error", err)
	}
}

func (p *Reviewer) println(s string) {
	if _, err := fmt.Fprintln(p.writer, s); err != nil {
		slog.Warn("Failed to write output", "error", err)
	}
}

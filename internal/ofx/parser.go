// Package ofx reads bank and credit card statements in OFX/QFX format.
package ofx

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/Veraticus/spice-reconcile/internal/model"
	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
)

// amountScale is the number of fraction digits kept when converting OFX
// amounts. It exceeds every currency's minor unit, so no cents are lost.
const amountScale = 8

// Transaction types derived from the amount sign.
const (
	TypeDebit  = "debit"
	TypeCredit = "credit"
)

// ErrNoStatement is returned for OFX files that carry no bank or credit card statement.
var ErrNoStatement = errors.New("OFX file contains no statement")

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	tagFixRegex   = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// Statement is the content of one OFX file.
type Statement struct {
	PeriodStart     *time.Time
	PeriodEnd       *time.Time
	InstitutionName string
	AccountID       string
	Transactions    []model.Transaction
}

// Parser implements OFX/QFX file parsing.
type Parser struct{}

// NewParser creates a new OFX parser.
func NewParser() *Parser {
	return &Parser{}
}

// preprocessOFX fixes common formatting issues in OFX files.
func (p *Parser) preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")

	// Fix mixed-case SEVERITY values (should be INFO, WARN, or ERROR)
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)

	// Fix missing closing angle brackets in SGML-style OFX files
	content = tagFixRegex.ReplaceAllString(content, "$1>")

	return content
}

// Parse reads a statement file. Transactions keep their signed amounts exactly
// as written in the file.
func (p *Parser) Parse(ctx context.Context, reader io.Reader) (Statement, error) {
	if err := ctx.Err(); err != nil {
		return Statement{}, err
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		return Statement{}, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return Statement{}, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	stmt := Statement{InstitutionName: strings.TrimSpace(string(resp.Signon.Org))}
	var bankStmts, ccStmts int

	for _, msg := range resp.Bank {
		bank, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			continue
		}
		bankStmts++
		if err := p.addTransactions(&stmt, string(bank.BankAcctFrom.AcctID), bank.BankTranList); err != nil {
			return Statement{}, err
		}
	}

	for _, msg := range resp.CreditCard {
		card, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			continue
		}
		ccStmts++
		if err := p.addTransactions(&stmt, string(card.CCAcctFrom.AcctID), card.BankTranList); err != nil {
			return Statement{}, err
		}
	}

	if bankStmts+ccStmts == 0 {
		return Statement{}, ErrNoStatement
	}

	slog.Info("Parsed OFX file",
		"institution", stmt.InstitutionName,
		"account", stmt.AccountID,
		"total_transactions", len(stmt.Transactions),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return stmt, nil
}

// addTransactions appends a statement's transactions and widens the period.
func (p *Parser) addTransactions(stmt *Statement, accountID string, list *ofxgo.TransactionList) error {
	if stmt.AccountID == "" {
		stmt.AccountID = accountID
	}
	if list == nil {
		return nil
	}

	stmt.PeriodStart = earliest(stmt.PeriodStart, list.DtStart.Time)
	stmt.PeriodEnd = latest(stmt.PeriodEnd, list.DtEnd.Time)

	for _, ofxTx := range list.Transactions {
		txn, err := p.convertTransaction(ofxTx, accountID)
		if err != nil {
			return err
		}
		stmt.Transactions = append(stmt.Transactions, txn)
	}
	return nil
}

// convertTransaction converts an OFX transaction to our model.
func (p *Parser) convertTransaction(ofxTx ofxgo.Transaction, accountID string) (model.Transaction, error) {
	amount, err := decimal.NewFromString(ofxTx.TrnAmt.FloatString(amountScale))
	if err != nil {
		return model.Transaction{}, fmt.Errorf("invalid amount for %s: %w", ofxTx.FiTID, err)
	}

	txnType := TypeCredit
	if amount.IsNegative() {
		txnType = TypeDebit
	}

	txn := model.Transaction{
		FITID:        strings.TrimSpace(string(ofxTx.FiTID)),
		Date:         ofxTx.DtPosted.Time,
		Description:  p.describe(ofxTx),
		Amount:       amount,
		Type:         txnType,
		ReviewStatus: model.StatusPending,
	}

	// Some banks omit FITIDs; derive a stable one so re-imports are still detected.
	if txn.FITID == "" {
		txn.FITID = syntheticFITID(accountID, txn)
	}

	return txn, nil
}

// describe joins the payee name and memo, the way statement lines read.
func (p *Parser) describe(tx ofxgo.Transaction) string {
	name := collapseSpaces(string(tx.Name))
	if tx.Payee != nil && tx.Payee.Name != "" {
		name = collapseSpaces(string(tx.Payee.Name))
	}
	memo := collapseSpaces(string(tx.Memo))

	switch {
	case memo == "":
		return name
	case name == "" || name == memo || isGenericDescription(name):
		return memo
	default:
		return name + " " + memo
	}
}

// genericNames are placeholder NAME values some banks send, with the real
// merchant in MEMO.
var genericNames = []string{
	"CREDIT", "DEBIT", "PAYMENT", "PURCHASE", "POS TRANSACTION", "CARD PURCHASE",
	"COMPRA", "COMPRA CARTAO", "PAGAMENTO", "TRANSFERENCIA",
}

func isGenericDescription(name string) bool {
	return slices.Contains(genericNames, strings.ToUpper(name))
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func syntheticFITID(accountID string, txn model.Transaction) string {
	data := fmt.Sprintf("%s:%s:%s:%s",
		accountID,
		txn.Date.Format("2006-01-02"),
		txn.Amount.String(),
		txn.Description)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash[:16])
}

func earliest(current *time.Time, candidate time.Time) *time.Time {
	if candidate.IsZero() {
		return current
	}
	if current == nil || candidate.Before(*current) {
		return &candidate
	}
	return current
}

func latest(current *time.Time, candidate time.Time) *time.Time {
	if candidate.IsZero() {
		return current
	}
	if current == nil || candidate.After(*current) {
		return &candidate
	}
	return current
}

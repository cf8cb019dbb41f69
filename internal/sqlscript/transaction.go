package sqlscript

import "regexp"

// TxEffect describes how a statement changes the session's transaction state.
type TxEffect int

const (
	// TxNone marks a statement that is not transaction control.
	TxNone TxEffect = iota
	// TxBegin opens a transaction (BEGIN, START TRANSACTION).
	TxBegin
	// TxEnd closes the current transaction (COMMIT, ROLLBACK, ABORT).
	TxEnd
	// TxNeutral is transaction control that leaves the transaction open
	// (SAVEPOINT, RELEASE, ROLLBACK TO, two-phase COMMIT/ROLLBACK PREPARED).
	TxNeutral
)

var (
	txBeginRe      = regexp.MustCompile(`(?is)^(BEGIN|START\s+TRANSACTION)\b`)
	txRollbackToRe = regexp.MustCompile(`(?is)^ROLLBACK(\s+(WORK|TRANSACTION))?\s+TO\b`)
	txPreparedRe   = regexp.MustCompile(`(?is)^(COMMIT|ROLLBACK)\s+PREPARED\b`)
	txEndRe        = regexp.MustCompile(`(?is)^(COMMIT|ROLLBACK|ABORT)\b`)
	txNeutralRe    = regexp.MustCompile(`(?is)^(SAVEPOINT|RELEASE)\b`)
)

// TransactionEffect classifies a single, already split statement.
func TransactionEffect(stmt string) TxEffect {
	switch {
	case txBeginRe.MatchString(stmt):
		return TxBegin
	case txRollbackToRe.MatchString(stmt), txPreparedRe.MatchString(stmt), txNeutralRe.MatchString(stmt):
		return TxNeutral
	case txEndRe.MatchString(stmt):
		return TxEnd
	}
	return TxNone
}

// IsTransactionControl reports whether stmt is BEGIN, START TRANSACTION,
// COMMIT, ROLLBACK, SAVEPOINT, RELEASE or ABORT.
func IsTransactionControl(stmt string) bool {
	return TransactionEffect(stmt) != TxNone
}

// Package sqlscript splits SQL scripts into statements and checks them before
// they are sent to a target.
//
// Splitting is token based rather than a full parse. Comments are removed and
// quoted strings (including E'...' escape strings) and identifiers are kept
// intact. Dollar-quoted bodies ($$...$$ or $tag$...$tag$) stay in one
// statement, as does a BEGIN ATOMIC ... END function body. A BEGIN that starts
// a statement is transaction control and is returned on its own; elsewhere it
// is treated as an identifier.
//
// Example usage:
//
//	stmts, err := sqlscript.Split("BEGIN; UPDATE t SET x = 1 WHERE id = 1; COMMIT;")
//	if err != nil {
//		return err
//	}
//	// stmts == []string{"BEGIN", "UPDATE t SET x = 1 WHERE id = 1", "COMMIT"}
//
// Validate rejects statements that are never allowed through the engine
// (database and schema creation or removal, role management, grants), and
// ClassifyRisk reports statements that deserve a confirmation step. Risk
// classification is advisory only.
package sqlscript

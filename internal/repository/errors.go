// Package repository holds the MySQL data access code.  Methods return the
// sentinel values below so services can tell failure scenarios apart
// without inspecting driver errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write cannot be performed because of the
// current state of the row or of rows referencing it, for example deleting
// a venue that events still point at or paying an invoice twice.
var ErrConflict = errors.New("conflict")

// ErrEmailExists is returned when a user insert or update hits the unique
// email key.
var ErrEmailExists = errors.New("email already exists")

// ErrDuplicateName is returned for unique name keys (venues, colleges).
var ErrDuplicateName = errors.New("name already exists")

// ErrDuplicate is returned when an active registration already exists for
// the same event and email.
var ErrDuplicate = errors.New("duplicate")

const (
	mysqlDuplicateEntry  = 1062
	mysqlRowIsReferenced = 1451
	mysqlNoReferencedRow = 1452
)

func mysqlCode(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

func isDuplicateKey(err error) bool { return mysqlCode(err) == mysqlDuplicateEntry }

func isReferenced(err error) bool { return mysqlCode(err) == mysqlRowIsReferenced }

func isMissingReference(err error) bool { return mysqlCode(err) == mysqlNoReferencedRow }

// Package repository implements the Credential Store and the Session Store
// over MySQL.  The sentinel values below let the service layer tell expected
// outcomes (missing rows, uniqueness violations) apart from infrastructure
// failures, which are returned wrapped.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an insert collides with users.email.
var ErrEmailExists = errors.New("email already exists")

// ErrExternalIDExists is returned when an insert or link collides with
// users.external_id.
var ErrExternalIDExists = errors.New("external id already linked")

// ErrTokenNotFound is returned when no live refresh_tokens row matches, or
// when a rotation lost the race for the row it wanted to consume.
var ErrTokenNotFound = errors.New("refresh token not found")

const mysqlDuplicateEntry = 1062

// classifyDuplicate maps MySQL duplicate-key errors on users to sentinels.
func classifyDuplicate(err error) error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != mysqlDuplicateEntry {
		return err
	}
	if strings.Contains(me.Message, "external_id") {
		return ErrExternalIDExists
	}
	return ErrEmailExists
}

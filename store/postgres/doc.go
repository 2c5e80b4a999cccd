// Package postgres stores profileauth users and refresh-session digests in
// PostgreSQL through database/sql and the pgx stdlib driver.
//
// [Store] implements profileauth.UserProvider and session.Backend. Schema
// changes ship as embedded goose migrations applied by [Store.Migrate].
package postgres

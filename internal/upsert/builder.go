package upsert

import (
	"fmt"
	"strings"

	"github.com/stagemerge/stagemerge/internal/model"
	"github.com/stagemerge/stagemerge/internal/query"
)

// pkEquality returns the join predicate pairing base and staging rows on the
// primary key, e.g. `b."book_id" = s."book_id" AND b."author_id" = s."author_id"`.
func pkEquality(d *model.TableDescriptor) string {
	conds := make([]string, len(d.PrimaryKey))
	for i, c := range d.PrimaryKey {
		q := query.QuoteIdentifier(c)
		conds[i] = fmt.Sprintf("b.%s = s.%s", q, q)
	}
	return strings.Join(conds, " AND ")
}

// distinctPredicate returns the filter keeping only rows where at least one
// non-key column actually differs. IS DISTINCT FROM treats two NULLs as
// equal, so unchanged rows are never rewritten.
func distinctPredicate(cols []string) string {
	conds := make([]string, len(cols))
	for i, c := range cols {
		q := query.QuoteIdentifier(c)
		conds[i] = fmt.Sprintf("b.%s IS DISTINCT FROM s.%s", q, q)
	}
	return "(" + strings.Join(conds, " OR ") + ")"
}

// updateSQL rewrites base rows from their staging counterparts, keyed on the
// primary key and restricted to rows that differ.
func updateSQL(d *model.TableDescriptor, setCols []string) string {
	assigns := make([]string, len(setCols))
	for i, c := range setCols {
		q := query.QuoteIdentifier(c)
		assigns[i] = fmt.Sprintf("%s = s.%s", q, q)
	}
	return fmt.Sprintf(
		"UPDATE %s AS b SET %s FROM %s AS s WHERE %s AND %s",
		d.BaseName, strings.Join(assigns, ", "), d.StgName, pkEquality(d), distinctPredicate(setCols))
}

// insertSQL copies staging rows whose key is absent from base. Without a
// primary key every staging row is copied.
func insertSQL(d *model.TableDescriptor, cols []string) string {
	colList := query.QuoteList(cols)
	selList := query.PrefixedList("s", cols)
	if !d.HasPrimaryKey() {
		return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s AS s",
			d.BaseName, colList, selList, d.StgName)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s AS s WHERE NOT EXISTS (SELECT 1 FROM %s AS b WHERE %s)",
		d.BaseName, colList, selList, d.StgName, d.BaseName, pkEquality(d))
}

// updatePreviewSQL returns the staging rows the update would apply.
func updatePreviewSQL(d *model.TableDescriptor, setCols []string, limit int) string {
	return fmt.Sprintf(
		"SELECT s.* FROM %s AS s JOIN %s AS b ON %s WHERE %s LIMIT %d",
		d.StgName, d.BaseName, pkEquality(d), distinctPredicate(setCols), limit)
}

// insertPreviewSQL returns the staging rows the insert would copy.
func insertPreviewSQL(d *model.TableDescriptor, limit int) string {
	if !d.HasPrimaryKey() {
		return fmt.Sprintf("SELECT s.* FROM %s AS s LIMIT %d", d.StgName, limit)
	}
	return fmt.Sprintf(
		"SELECT s.* FROM %s AS s WHERE NOT EXISTS (SELECT 1 FROM %s AS b WHERE %s) LIMIT %d",
		d.StgName, d.BaseName, pkEquality(d), limit)
}

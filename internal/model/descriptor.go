// Package model holds the catalog-derived table descriptors and generic
// rowset types shared by the QA and upsert engines.
package model

// TableDescriptor describes one configured table: the shape shared by its
// staging and base versions plus the constraints declared on the base table.
// Descriptors are built once by the catalog inspector and treated as
// read-only afterwards.
type TableDescriptor struct {
	Name     string // bare table name as configured
	BaseName string // schema-qualified, quoted base identifier
	StgName  string // schema-qualified, quoted staging identifier

	// Columns common to base and staging, in base ordinal order. The full
	// list is retained for QA; DMLColumns drives UPDATE/INSERT synthesis.
	Columns    []string
	DMLColumns []string // Columns minus the configured exclude set

	PrimaryKey       []string // ordered PK column tuple; empty means no PK
	NotNullColumns   []string // base NOT NULL columns minus the null-check exclude set
	ForeignKeys      []ForeignKey
	CheckConstraints []CheckConstraint
}

// ForeignKey describes a foreign key declared on the base table. Local and
// referenced columns are paired by ordinal position.
type ForeignKey struct {
	Name              string
	Columns           []string
	ReferencedSchema  string
	ReferencedTable   string
	ReferencedColumns []string
}

// CheckConstraint describes a check constraint on the base table. Expression
// is the predicate text exactly as stored in the catalog.
type CheckConstraint struct {
	Name       string
	Expression string
}

// UpdateColumns returns the DML columns that are not part of the primary key,
// preserving order. These are the columns assigned by UPDATE statements.
func (d *TableDescriptor) UpdateColumns() []string {
	pk := make(map[string]bool, len(d.PrimaryKey))
	for _, c := range d.PrimaryKey {
		pk[c] = true
	}
	cols := make([]string, 0, len(d.DMLColumns))
	for _, c := range d.DMLColumns {
		if !pk[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

// HasPrimaryKey reports whether the base table declares a primary key.
func (d *TableDescriptor) HasPrimaryKey() bool {
	return len(d.PrimaryKey) > 0
}

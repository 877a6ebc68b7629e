package db

import "context"

type metaLister interface {
	ListColumns(ctx context.Context, table string) ([]ColumnInfo, error)
	ListIdentityColumns(ctx context.Context, table string) (map[string]struct{}, error)
}

// buildTableMeta runs the two catalog reads that make up one table probe.
func buildTableMeta(ctx context.Context, l metaLister, table string) (TableMeta, error) {
	cols, err := l.ListColumns(ctx, table)
	if err != nil {
		return TableMeta{}, err
	}
	ident, err := l.ListIdentityColumns(ctx, table)
	if err != nil {
		return TableMeta{}, err
	}
	return TableMeta{Table: table, Columns: cols, Identity: ident}, nil
}

func toSet(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validWorkflow() *Workflow {
	return &Workflow{
		ID:                      "wf-1",
		Name:                    "customers",
		SourceConnectionID:      "src",
		DestinationConnectionID: "dst",
		OwnerID:                 "u1",
		TableMappings: []TableMapping{{
			SourceTable:      "customers",
			DestinationTable: "customers",
			Columns: []ColumnMapping{
				{SourceColumn: "id", DestinationColumn: "id"},
				{SourceColumn: "name", DestinationColumn: "name", IsPII: true, Category: CatName},
			},
		}},
	}
}

func TestValidateForExecution_OK(t *testing.T) {
	vs := NewValidationService()
	require.NoError(t, vs.ValidateForExecution(validWorkflow()))
}

func TestValidateForExecution_NoTables(t *testing.T) {
	vs := NewValidationService()
	w := validWorkflow()
	w.TableMappings = nil
	err := vs.ValidateForExecution(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no table mappings")
}

func TestValidateForExecution_NoColumns(t *testing.T) {
	vs := NewValidationService()
	w := validWorkflow()
	w.TableMappings[0].Columns = nil
	err := vs.ValidateForExecution(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no column mappings")
}

func TestValidateForExecution_DuplicateColumns(t *testing.T) {
	vs := NewValidationService()

	w := validWorkflow()
	w.TableMappings[0].Columns = append(w.TableMappings[0].Columns,
		ColumnMapping{SourceColumn: "ssn", DestinationColumn: "Name", IsPII: true, Category: CatSSN})
	err := vs.ValidateForExecution(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate destination column 'Name'")

	w = validWorkflow()
	w.TableMappings[0].Columns = append(w.TableMappings[0].Columns,
		ColumnMapping{SourceColumn: "NAME", DestinationColumn: "display_name"})
	err = vs.ValidateForExecution(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate source column 'NAME'")

	// Columns may repeat across table mappings.
	w = validWorkflow()
	w.TableMappings = append(w.TableMappings, w.TableMappings[0])
	require.NoError(t, vs.ValidateForExecution(w))
}

func TestValidate_PIIWithoutCategory(t *testing.T) {
	vs := NewValidationService()
	w := validWorkflow()
	w.TableMappings[0].Columns[1].Category = ""
	err := vs.ValidateStruct(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a PII column needs a category")
}

func TestValidate_UnknownCategory(t *testing.T) {
	vs := NewValidationService()
	w := validWorkflow()
	w.TableMappings[0].Columns[1].Category = "favourite_colour"
	err := vs.ValidateStruct(w)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownCategory))
}

func TestValidate_NonPIIIgnoresCategory(t *testing.T) {
	vs := NewValidationService()
	w := validWorkflow()
	w.TableMappings[0].Columns[0].Category = "whatever"
	assert.NoError(t, vs.ValidateStruct(w))
}

func TestValidate_ConnectionKind(t *testing.T) {
	vs := NewValidationService()
	c := &Connection{ID: "c1", Name: "db", Kind: "oracle", Host: "h", OwnerID: "u1"}
	err := vs.ValidateStruct(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kind")

	c.Kind = KindPostgreSQL
	assert.NoError(t, vs.ValidateStruct(c))
}

func TestParseBackendKind(t *testing.T) {
	for in, want := range map[string]BackendKind{
		"mssql": KindSQLServer, "Azure_SQL": KindAzureSQL, "postgres": KindPostgreSQL, "sqlite3": KindSQLite,
	} {
		got, err := ParseBackendKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseBackendKind("oracle")
	assert.Error(t, err)
	assert.True(t, KindAzureSQL.SQLServerFamily())
	assert.False(t, KindPostgreSQL.SQLServerFamily())
}

func TestListCategories_SortedAndKnown(t *testing.T) {
	cats := ListCategories()
	require.Len(t, cats, 36)
	for i, c := range cats {
		assert.True(t, c.Known())
		if i > 0 {
			assert.Less(t, string(cats[i-1]), string(c))
		}
	}
	assert.False(t, PIICategory("nope").Known())
}

func TestTableMapping_Columns(t *testing.T) {
	tm := validWorkflow().TableMappings[0]
	assert.Equal(t, []string{"id", "name"}, tm.SourceColumns())
	assert.Equal(t, []string{"id", "name"}, tm.DestinationColumns())
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableCloneIsIndependent(t *testing.T) {
	table := NewTable([]string{"NPI", "Practice Name"})
	table.Append(map[string]string{"NPI": "1043325483", "Practice Name": "City General Hospital"})

	clone := table.Clone()
	clone.Records[0].Fields["NPI"] = ""
	clone.AddColumn("NPI-2")

	assert.Equal(t, "1043325483", table.Records[0].Get("NPI"))
	assert.False(t, table.HasColumn("NPI-2"))
	assert.True(t, clone.HasColumn("NPI-2"))
}

func TestTableRequireColumns(t *testing.T) {
	table := NewTable([]string{"NPI"})
	assert.NoError(t, table.RequireColumns("NPI", ""))
	assert.ErrorIs(t, table.RequireColumns("Practice Name"), ErrMissingColumn)
}

func TestColumnsContaining(t *testing.T) {
	table := NewTable([]string{"npi", "Practice Name", "NPI-2", "state"})
	assert.Equal(t, []string{"npi", "NPI-2"}, table.ColumnsContaining("npi"))
}

func TestTableLimitAndRows(t *testing.T) {
	table := NewTable([]string{"a", "b"})
	table.Append(map[string]string{"a": "1", "b": "2"})
	table.Append(map[string]string{"a": "3"})

	assert.Len(t, table.Limit(1).Records, 1)
	assert.Len(t, table.Limit(0).Records, 2)
	assert.Equal(t, [][]string{{"1", "2"}, {"3", ""}}, table.Rows())
}

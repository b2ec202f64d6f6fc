package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"treasury/internal/report"
)

const cashFlowBody = `{
	"Acme Ltd": [
		{"companyId":1,"companyName":"Acme Ltd","accountNo":1001,"limit":500000,"typeId":2,"interestRate":"9.00","bank":"Sonali","openingBalance":1000,"deposit":200,"withdrawal":50,"closingBalance":1150},
		{"companyId":1,"companyName":"Acme Ltd","accountNo":1002,"limit":"250000","typeId":2,"interestRate":"8.50","bank":"Janata","openingBalance":"300","deposit":0,"withdrawal":0,"closingBalance":300}
	],
	"Beta Traders": [
		{"companyId":2,"companyName":"Beta Traders","accountNo":2001,"limit":100000,"typeId":1,"interestRate":"10.25","bank":"Pubali","openingBalance":50,"deposit":25,"withdrawal":5,"closingBalance":70}
	]
}`

func TestFlatten_GroupedDropsKeyKeepsOrder(t *testing.T) {
	def, err := report.Lookup(report.CashFlowLoanAccount)
	require.NoError(t, err)
	p := report.Decode(def, []byte(cashFlowBody))

	recs := Flatten(p, def.Export)
	require.Len(t, recs, 3)

	assert.Equal(t, "1001", recs[0]["accountNo"])
	assert.Equal(t, "1002", recs[1]["accountNo"])
	assert.Equal(t, "2001", recs[2]["accountNo"])
	assert.Equal(t, 250000.0, recs[1]["limit"])
	assert.Equal(t, 300.0, recs[1]["openingBalance"])
	assert.Equal(t, "8.50", recs[1]["interestRate"])

	for _, r := range recs {
		assert.Len(t, r, len(def.Export))
		_, hasType := r["typeId"]
		assert.False(t, hasType, "typeId is not projected")
	}
}

func TestFlatten_RegroupRoundTrip(t *testing.T) {
	def, err := report.Lookup(report.CashFlowLoanAccount)
	require.NoError(t, err)
	p := report.Decode(def, []byte(cashFlowBody))

	groups := Regroup(Flatten(p, def.Export), func(r Record) string {
		return r["companyName"].(string)
	})

	require.Len(t, groups, len(p.Groups))
	for i, g := range groups {
		orig := p.Groups[i]
		assert.Equal(t, orig.Key, g.Key)
		require.Len(t, g.Items, len(orig.Items))
		for j, item := range g.Items {
			for _, col := range def.Export {
				if col.Numeric() {
					assert.Equal(t, orig.Items[j].Number(col.Field), item.Number(col.Field), "%s/%s", g.Key, col.Field)
				} else {
					assert.Equal(t, orig.Items[j].Text(col.Field), item.Text(col.Field), "%s/%s", g.Key, col.Field)
				}
			}
		}
	}
}

func TestFlatten_Flat(t *testing.T) {
	def, err := report.Lookup(report.BankTypeUtilization)
	require.NoError(t, err)
	p := report.Decode(def, []byte(`[{"bankName":"A","accountType":"Savings","limit":"10","balanceOnDate":5,"utilizePercent":"50","extra":"x"}]`))

	recs := Flatten(p, def.Export)
	require.Len(t, recs, 1)
	assert.Equal(t, Record{
		"bankName":       "A",
		"accountType":    "Savings",
		"limit":          10.0,
		"balanceOnDate":  5.0,
		"utilizePercent": 50.0,
	}, recs[0])
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "bank-utilization-2024-06-30.xlsx", FileName("bank-utilization", "2024-06-30"))
	assert.Equal(t, "interest-rate-.._etc_passwd.xlsx", FileName("interest-rate", "../etc/passwd"))

	job := &Job{ID: "9f1c", Kind: "bank-utilization", Date: "2024-06-30"}
	assert.Equal(t, "bank-utilization-2024-06-30-9f1c.xlsx", job.FileName())
}

func TestWriteXLSX(t *testing.T) {
	def, err := report.Lookup(report.BankUtilization)
	require.NoError(t, err)
	p := report.Decode(def, []byte(`[
		{"bankName":"A","limit":"1000","balanceOnDate":500,"utilizePercent":50},
		{"bankName":"B","limit":2000,"balanceOnDate":"1000","utilizePercent":"50"}
	]`))

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, def.Sheet, Tabulate(Flatten(p, def.Export), def.Export)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, def.Sheet, f.GetSheetName(0))
	rows, err := f.GetRows(def.Sheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Bank Name", "Limit", "Balance on Date", "Utilize Percent"}, rows[0])
	assert.Equal(t, []string{"A", "1000", "500", "50"}, rows[1])
	assert.Equal(t, []string{"B", "2000", "1000", "50"}, rows[2])
}

func TestWriteXLSX_UnparseableNumberLeavesCellEmpty(t *testing.T) {
	def, err := report.Lookup(report.BankUtilization)
	require.NoError(t, err)
	p := report.Decode(def, []byte(`[
		{"bankName":"A","limit":"abc","balanceOnDate":500,"utilizePercent":50}
	]`))

	table := ForReport(def, p)
	require.Len(t, table.Warnings, 1)
	assert.Contains(t, table.Warnings[0], "row 1, Limit")
	assert.Nil(t, table.Rows[0][1])

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, def.Sheet, table))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	limit, err := f.GetCellValue(def.Sheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "", limit)

	rows, err := f.GetRows(def.Sheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"A", "", "500", "50"}, rows[1])
	for _, cell := range rows[1] {
		assert.NotEqual(t, "NaN", cell)
	}
}

func TestTabulate_FiniteTableHasNoWarnings(t *testing.T) {
	def, err := report.Lookup(report.CashFlowLoanAccount)
	require.NoError(t, err)
	table := ForReport(def, report.Decode(def, []byte(cashFlowBody)))
	assert.Empty(t, table.Warnings)
	assert.Len(t, table.Rows, 3)
}

func TestWriteXLSX_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, "", Table{Headers: []string{"Bank Name"}}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Report")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobQueued.Terminal())
	assert.False(t, JobRunning.Terminal())
	assert.True(t, JobDone.Terminal())
	assert.True(t, JobFailed.Terminal())
}

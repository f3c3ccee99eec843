package models_test

import (
	"testing"

	"github.com/mmdatafocus/settlement_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardSchedules(t *testing.T) {
	monthly := models.StandardMonthlySchedule("1000")
	require.Len(t, monthly.Tasks, 15)
	assert.Equal(t, "MONTHLY-1000", monthly.ScheduleId)
	for i, st := range monthly.Tasks {
		assert.Equal(t, i+1, st.Sequence)
		assert.True(t, st.IsMandatory, st.Task)
	}

	yearEnd := models.YearEndSchedule("1000")
	require.Len(t, yearEnd.Tasks, 19)
	assert.True(t, yearEnd.IsYearEnd)
	assert.Equal(t, models.CloseTaskGenerateFinancialStatements, yearEnd.Tasks[18].Task)
}

func TestCloseTaskKinds(t *testing.T) {
	custom := models.CustomCloseTask("Bank fees")
	assert.True(t, custom.IsCustom())
	assert.Equal(t, "Bank fees", custom.Name())

	assert.True(t, models.CloseTaskReconcileFaToGl.IsReconciliation())
	assert.False(t, models.CloseTaskRunDepreciation.IsReconciliation())
	assert.True(t, models.CloseTaskCloseIncomeStatement.IsYearEndOnly())
	assert.True(t, models.CloseTaskGenerateTrialBalance.IsReport())
	assert.Equal(t, "Post IC Settlements", models.CloseTaskPostIntercompanySettlements.Name())
}

func TestParseDocumentKind(t *testing.T) {
	k, err := models.ParseDocumentKind(" vendorinvoice ")
	require.NoError(t, err)
	assert.Equal(t, models.DocumentKindVendorInvoice, k)

	_, err = models.ParseDocumentKind("vendor_invoice")
	assert.Error(t, err)
}

func TestCloseRunResultPrefersSuccess(t *testing.T) {
	period := models.NewMonthlyPeriod(2024, 1)
	result := func(task models.CloseTask, status models.CloseTaskStatus) models.CloseTaskResult {
		r := models.NewCloseTaskResult(task, "1000", period)
		r.Status = status
		return r
	}
	run := models.NewPeriodCloseRun("CLOSE-00000001", "1000", period)
	run.TaskResults = []models.CloseTaskResult{
		result(models.CloseTaskRunDepreciation, models.TaskFailed("first attempt")),
		result(models.CloseTaskPostAccruedExpenses, models.TaskFailed("only attempt")),
		result(models.CloseTaskRunDepreciation, models.TaskCompleted()),
	}

	dep, ok := run.Result(models.CloseTaskRunDepreciation)
	require.True(t, ok)
	assert.Equal(t, models.CloseTaskStateCompleted, dep.Status.State)

	acc, ok := run.Result(models.CloseTaskPostAccruedExpenses)
	require.True(t, ok)
	assert.Equal(t, "only attempt", acc.Status.Reason)

	_, ok = run.Result(models.CloseTaskReconcileApToGl)
	assert.False(t, ok)
}

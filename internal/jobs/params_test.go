package jobs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellerdesk/sellerdesk/internal/db/models"
)

func TestDecodeParams(t *testing.T) {
	job := &models.Job{
		Type:   models.JobTypeSettlementImport,
		Params: json.RawMessage(`{"import_id": 42}`),
	}
	var params SettlementImportParams
	require.NoError(t, DecodeParams(job, &params))
	assert.Equal(t, uint(42), params.ImportID)
}

func TestDecodeParamsEmptyPayload(t *testing.T) {
	var params StockResetParams
	require.NoError(t, DecodeParams(&models.Job{Type: models.JobTypeStockReset}, &params))
	assert.Zero(t, params.ResetTo)
}

func TestDecodeParamsRejectsUnknownKeys(t *testing.T) {
	job := &models.Job{
		Type:   models.JobTypeSettlementImport,
		Params: json.RawMessage(`{"import_id": 42, "surprise": true}`),
	}
	var params SettlementImportParams
	err := DecodeParams(job, &params)
	require.Error(t, err, "unknown keys fail at admission, not mid-flight")
	assert.Contains(t, err.Error(), "invalid op_params")
}

// Service-built payloads go through json.Marshal; the json and mapstructure
// tag sets must produce the same keys or DecodeParams rejects its own input.
func TestDecodeParamsAcceptsMarshalledStructs(t *testing.T) {
	tests := []struct {
		name    string
		jobType models.JobType
		in      interface{}
		out     interface{}
	}{
		{"settlement import", models.JobTypeSettlementImport, SettlementImportParams{ImportID: 42}, &SettlementImportParams{}},
		{"bulk delete", models.JobTypeBulkDelete, BulkDeleteParams{Entity: "orders"}, &BulkDeleteParams{}},
		{"stock reset", models.JobTypeStockReset, StockResetParams{ResetTo: 0}, &StockResetParams{}},
		{"notification export", models.JobTypeNotificationExport, NotificationExportParams{Channel: "email"}, &NotificationExportParams{}},
		{"workspace clone", models.JobTypeClone, WorkspaceParams{TargetTenantID: 9}, &WorkspaceParams{}},
		{"workspace restore", models.JobTypeRestore, WorkspaceParams{BackupJobID: 3}, &WorkspaceParams{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.in)
			require.NoError(t, err)
			job := &models.Job{Type: tt.jobType, Params: raw}
			require.NoError(t, DecodeParams(job, tt.out))
		})
	}

	raw, err := json.Marshal(SettlementImportParams{ImportID: 42})
	require.NoError(t, err)
	var params SettlementImportParams
	require.NoError(t, DecodeParams(&models.Job{Type: models.JobTypeSettlementImport, Params: raw}, &params))
	assert.Equal(t, uint(42), params.ImportID)
}

func TestDecodeParamsMalformedJSON(t *testing.T) {
	job := &models.Job{
		Type:   models.JobTypeSettlementImport,
		Params: json.RawMessage(`{"import_id":`),
	}
	var params SettlementImportParams
	require.Error(t, DecodeParams(job, &params))
}

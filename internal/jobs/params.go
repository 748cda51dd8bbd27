package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/sellerdesk/sellerdesk/internal/db/models"
)

// Params structs carry both tag sets: mapstructure for DecodeParams and json
// for services that build op_params payloads with json.Marshal. The keys must
// agree or a service-built payload fails the unknown-key check.

// BulkDeleteParams selects the records a bulk delete operates on
type BulkDeleteParams struct {
	// Entity is the record type to delete; currently only "orders"
	Entity string `json:"entity,omitempty" mapstructure:"entity"`
}

// StockResetParams configures a stock reset
type StockResetParams struct {
	// ResetTo is reserved for future non-zero resets; zero today
	ResetTo int `json:"reset_to,omitempty" mapstructure:"reset_to"`
}

// SettlementImportParams binds a settlement job to its import record
type SettlementImportParams struct {
	ImportID uint `json:"import_id" mapstructure:"import_id"`
}

// NotificationExportParams configures a notification fan-out export
type NotificationExportParams struct {
	Channel string `json:"channel,omitempty" mapstructure:"channel"`
}

// WorkspaceParams configures backup, restore, and clone jobs
type WorkspaceParams struct {
	// TargetTenantID is the destination workspace for clone
	TargetTenantID uint `json:"target_tenant_id,omitempty" mapstructure:"target_tenant_id"`
	// BackupJobID names the completed backup a restore reads from
	BackupJobID uint `json:"backup_job_id,omitempty" mapstructure:"backup_job_id"`
}

// DecodeParams decodes a job's raw op_params payload into a typed struct.
// Unknown keys are rejected so malformed requests fail at admission, not
// mid-flight.
func DecodeParams(job *models.Job, out interface{}) error {
	var raw map[string]interface{}
	if len(job.Params) > 0 {
		if err := json.Unmarshal(job.Params, &raw); err != nil {
			return fmt.Errorf("invalid op_params: %w", err)
		}
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("invalid op_params for %s: %w", job.Type, err)
	}
	return nil
}

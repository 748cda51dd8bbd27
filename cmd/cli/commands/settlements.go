package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sellerdesk/sellerdesk/internal/db/models"
)

// importOutput represents the filtered output for a settlement import
type importOutput struct {
	ID        uint                    `json:"id"`
	FileName  string                  `json:"file_name"`
	Status    string                  `json:"status"`
	MonthKey  string                  `json:"month_key,omitempty"`
	Total     int                     `json:"total_rows"`
	Processed int                     `json:"processed_rows"`
	Matched   int                     `json:"matched_rows"`
	Unmatched int                     `json:"unmatched_rows"`
	Totals    models.SettlementTotals `json:"totals"`
}

func toImportOutput(imp models.SettlementImport) importOutput {
	return importOutput{
		ID:        imp.ID,
		FileName:  imp.FileName,
		Status:    string(imp.Status),
		MonthKey:  imp.MonthKey,
		Total:     imp.TotalRows,
		Processed: imp.ProcessedRows,
		Matched:   imp.MatchedRows,
		Unmatched: imp.UnmatchedRows,
		Totals:    imp.TotalsCached,
	}
}

func init() {
	settlementsCmd.AddCommand(uploadSettlementCmd)
	settlementsCmd.AddCommand(listImportsCmd)
	settlementsCmd.AddCommand(getImportCmd)
	settlementsCmd.AddCommand(rebuildImportCmd)
	settlementsCmd.AddCommand(recomputeCOGSCmd)
	settlementsCmd.AddCommand(auditCmd)

	uploadSettlementCmd.Flags().StringP("file", "f", "", "Path to the settlement CSV file")
	_ = uploadSettlementCmd.MarkFlagRequired("file")

	listImportsCmd.Flags().IntP("limit", "l", 0, "Limit the number of imports returned")

	getImportCmd.Flags().UintP("id", "i", 0, "Import ID")
	_ = getImportCmd.MarkFlagRequired("id")
	rebuildImportCmd.Flags().UintP("id", "i", 0, "Import ID")
	_ = rebuildImportCmd.MarkFlagRequired("id")
	recomputeCOGSCmd.Flags().UintP("id", "i", 0, "Import ID (omit to recompute the whole workspace)")
	auditCmd.Flags().UintP("id", "i", 0, "Import ID (omit to audit the whole workspace)")
}

var settlementsCmd = &cobra.Command{
	Use:   "settlements",
	Short: "Manage settlement imports",
}

var uploadSettlementCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a settlement report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("file")
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("error reading %s: %w", path, err)
		}

		result, err := apiClient.UploadSettlement(context.Background(), filepath.Base(path), data)
		if err != nil {
			return fmt.Errorf("error uploading settlement: %w", err)
		}
		return printJSON(map[string]interface{}{
			"import": toImportOutput(result.Import),
			"job":    toJobOutput(result.Job),
		})
	},
}

var listImportsCmd = &cobra.Command{
	Use:   "list",
	Short: "List settlement imports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		imports, err := apiClient.ListImports(context.Background(), &models.ListOptions{Limit: limit})
		if err != nil {
			return fmt.Errorf("error fetching imports: %w", err)
		}

		output := make([]importOutput, len(imports))
		for i, imp := range imports {
			output[i] = toImportOutput(imp)
		}
		return printJSON(output)
	},
}

var getImportCmd = &cobra.Command{
	Use:   "get",
	Short: "Get a specific import",
	RunE: func(cmd *cobra.Command, _ []string) error {
		importID, _ := cmd.Flags().GetUint("id")
		imp, err := apiClient.GetImport(context.Background(), importID)
		if err != nil {
			return fmt.Errorf("error fetching import: %w", err)
		}
		return printJSON(toImportOutput(imp))
	},
}

var rebuildImportCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Re-materialize missing rows for an import",
	RunE: func(cmd *cobra.Command, _ []string) error {
		importID, _ := cmd.Flags().GetUint("id")
		result, err := apiClient.RebuildImport(context.Background(), importID)
		if err != nil {
			return fmt.Errorf("error rebuilding import: %w", err)
		}
		return printJSON(result)
	},
}

var recomputeCOGSCmd = &cobra.Command{
	Use:   "recompute-cogs",
	Short: "Re-derive match state and COGS for the workspace",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var importID *uint
		if id, _ := cmd.Flags().GetUint("id"); id != 0 {
			importID = &id
		}
		result, err := apiClient.RecomputeCOGS(context.Background(), importID)
		if err != nil {
			return fmt.Errorf("error recomputing COGS: %w", err)
		}
		return printJSON(result)
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run a read-only integrity audit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var importID *uint
		if id, _ := cmd.Flags().GetUint("id"); id != 0 {
			importID = &id
		}
		report, err := apiClient.Audit(context.Background(), importID)
		if err != nil {
			return fmt.Errorf("error running audit: %w", err)
		}
		return printJSON(report)
	},
}

// GetSettlementsCmd returns the settlements command
func GetSettlementsCmd() *cobra.Command {
	return settlementsCmd
}

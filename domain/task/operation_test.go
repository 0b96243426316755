package task

import "testing"

func TestOperation_String(t *testing.T) {
	op := OperationReembedSweep
	if op.String() != "visimatch.catalog.reembed_sweep" {
		t.Errorf("String() = %q, want %q", op.String(), "visimatch.catalog.reembed_sweep")
	}
}

func TestOperation_IsCatalogOperation(t *testing.T) {
	tests := []struct {
		op   Operation
		want bool
	}{
		{OperationReembedSweep, true},
		{OperationReembedBatch, true},
		{OperationImportCatalogRow, true},
		{OperationBackupActiveModel, false},
		{OperationRoot, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			if got := tt.op.IsCatalogOperation(); got != tt.want {
				t.Errorf("IsCatalogOperation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOperation_IsTrainingOperation(t *testing.T) {
	tests := []struct {
		op   Operation
		want bool
	}{
		{OperationTrainingSession, true},
		{OperationPrepareTrainingData, true},
		{OperationRunTrainingEpoch, true},
		{OperationReembedSweep, false},
		{OperationRoot, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			if got := tt.op.IsTrainingOperation(); got != tt.want {
				t.Errorf("IsTrainingOperation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOperation_IsModelOperation(t *testing.T) {
	tests := []struct {
		op   Operation
		want bool
	}{
		{OperationRestoreBackup, true},
		{OperationCleanupBackups, true},
		{OperationReembedSweep, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			if got := tt.op.IsModelOperation(); got != tt.want {
				t.Errorf("IsModelOperation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPrescribedOperations_All_ContainsAllWorkflows(t *testing.T) {
	po := NewPrescribedOperations()
	all := po.All()

	if len(all) == 0 {
		t.Fatal("All() should return operations")
	}

	allSet := make(map[Operation]struct{})
	for _, op := range all {
		allSet[op] = struct{}{}
	}

	for _, workflow := range [][]Operation{
		po.ReembedCatalog(),
		po.RunTrainingSession(),
		po.RestoreBackup(),
	} {
		for _, op := range workflow {
			if _, ok := allSet[op]; !ok {
				t.Errorf("All() missing operation %v", op)
			}
		}
	}
}

func TestPrescribedOperations_All_NoDuplicates(t *testing.T) {
	po := NewPrescribedOperations()
	all := po.All()

	seen := make(map[Operation]struct{})
	for _, op := range all {
		if _, ok := seen[op]; ok {
			t.Errorf("All() contains duplicate: %v", op)
		}
		seen[op] = struct{}{}
	}
}

func TestPrescribedOperations_ReembedCatalog(t *testing.T) {
	ops := NewPrescribedOperations().ReembedCatalog()
	if len(ops) == 0 {
		t.Fatal("ReembedCatalog() should return operations")
	}
	if ops[0] != OperationReembedSweep {
		t.Errorf("first operation = %v, want %v", ops[0], OperationReembedSweep)
	}
}

func TestPrescribedOperations_RunTrainingSession(t *testing.T) {
	ops := NewPrescribedOperations().RunTrainingSession()

	var hasBackup, hasPrepare, hasEpoch, hasPromote, hasConsume bool
	for _, op := range ops {
		switch op {
		case OperationBackupActiveModel:
			hasBackup = true
		case OperationPrepareTrainingData:
			hasPrepare = true
		case OperationRunTrainingEpoch:
			hasEpoch = true
		case OperationPromoteModel:
			hasPromote = true
		case OperationMarkExamplesConsumed:
			hasConsume = true
		}
	}
	if !hasBackup || !hasPrepare || !hasEpoch || !hasPromote || !hasConsume {
		t.Errorf("RunTrainingSession() missing a required stage: %v", ops)
	}
	if ops[0] != OperationBackupActiveModel {
		t.Errorf("first operation = %v, want a pre-training backup", ops[0])
	}
}

func TestPrescribedOperations_RestoreBackup_BacksUpFirst(t *testing.T) {
	ops := NewPrescribedOperations().RestoreBackup()
	if ops[0] != OperationBackupActiveModel {
		t.Errorf("first operation = %v, want %v (restore must be reversible)", ops[0], OperationBackupActiveModel)
	}
}

func TestPrescribedOperations_AllOperationsAreValidConstants(t *testing.T) {
	po := NewPrescribedOperations()

	validOps := map[Operation]struct{}{
		OperationRoot:                 {},
		OperationReembedSweep:         {},
		OperationReembedBatch:         {},
		OperationImportCatalogRow:     {},
		OperationTrainingSession:      {},
		OperationPrepareTrainingData:  {},
		OperationRunTrainingEpoch:     {},
		OperationBackupActiveModel:    {},
		OperationPromoteModel:         {},
		OperationMarkExamplesConsumed: {},
		OperationRestoreBackup:        {},
		OperationCleanupBackups:       {},
	}

	for _, op := range po.All() {
		if _, ok := validOps[op]; !ok {
			t.Errorf("prescribed operation %q is not a defined constant", op)
		}
	}
}

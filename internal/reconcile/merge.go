package reconcile

import "github.com/jask/stmtsync/internal/database/repository"

// MergeInput holds the metadata of both sides of a merge.
type MergeInput struct {
	ManualCategoryID   *string
	ManualSource       repository.CategorySource
	ManualNotes        *string
	ImportedCategoryID *string
	ImportedNotes      *string
}

// MergeResult is the metadata the surviving record keeps.
type MergeResult struct {
	CategoryID     *string
	CategorySource repository.CategorySource
	Notes          *string
	CaptureMethod  string
	// CarriedManualCategory is set when the category came from the manual
	// record, which makes it a confirmed categorization.
	CarriedManualCategory bool
}

// MergeMetadata combines a manual record with the statement line replacing
// it. A manual category survives only when the statement has none and a
// person chose it.
func MergeMetadata(in MergeInput) MergeResult {
	res := MergeResult{CaptureMethod: repository.CaptureStatementImport}
	switch {
	case in.ImportedCategoryID != nil:
		res.CategoryID = in.ImportedCategoryID
		res.CategorySource = repository.CategorySourceImport
	case in.ManualCategoryID != nil && in.ManualSource.UserAssigned():
		res.CategoryID = in.ManualCategoryID
		res.CategorySource = in.ManualSource
		res.CarriedManualCategory = true
	}
	switch {
	case in.ImportedNotes != nil:
		res.Notes = in.ImportedNotes
	case in.ManualNotes != nil:
		res.Notes = in.ManualNotes
	}
	return res
}

// MergeInputFor builds the merge input of a manual record and the imported
// line that duplicates it.
func MergeInputFor(manual repository.Transaction, importedCategory, importedNotes *string) MergeInput {
	return MergeInput{
		ManualCategoryID:   manual.CategoryID,
		ManualSource:       manual.CategorySource,
		ManualNotes:        manual.Notes,
		ImportedCategoryID: importedCategory,
		ImportedNotes:      importedNotes,
	}
}

// Patch converts the result to the store's update shape.
func (r MergeResult) Patch() repository.MetadataPatch {
	return repository.MetadataPatch{
		CategoryID:     r.CategoryID,
		CategorySource: r.CategorySource,
		Notes:          r.Notes,
		CaptureMethod:  r.CaptureMethod,
	}
}

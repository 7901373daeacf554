package dto

// BulkAction names the operations that can be fanned out over a selection.
type BulkAction string

const (
	BulkActionActivate    BulkAction = "activate"
	BulkActionDeactivate  BulkAction = "deactivate"
	BulkActionDelete      BulkAction = "delete"
	BulkActionSetMentor   BulkAction = "set_mentor"
	BulkActionUnsetMentor BulkAction = "unset_mentor"
)

// BulkActionRequest captures POST /alumni/bulk payload.
type BulkActionRequest struct {
	IDs    []string   `json:"ids" validate:"required,min=1,max=500,dive,required"`
	Action BulkAction `json:"action" validate:"required,oneof=activate deactivate delete set_mentor unset_mentor"`
}

// BulkFailure reports one failed item of a bulk action.
type BulkFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BulkActionResponse summarises a settled bulk action. Every requested id
// appears in exactly one of Succeeded or Failed; clients clear their
// selection only for Succeeded ids.
type BulkActionResponse struct {
	Action    BulkAction    `json:"action"`
	Total     int           `json:"total"`
	Succeeded []string      `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

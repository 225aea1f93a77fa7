// Package errors defines the kernel's typed error taxonomy (spec §7).
//
// Every error the kernel returns is a *KernelError carrying a stable Code
// from one of the four categories below, plus an optional wrapped cause.
// FlashUpload is deliberately NOT a KernelError: it is a Signal, caught one
// level up by the file-move coordinator's caller and converted to
// success-with-dedup metadata, never surfaced to the submitter as a failure.
package errors

import "fmt"

// Category groups error codes for propagation-policy decisions (§7):
// input/lookup errors abort the workflow and are surfaced to the submitter;
// external failures are retried by the caller with backoff.
type Category string

const (
	CategoryInput       Category = "input"
	CategoryLookup      Category = "lookup"
	CategoryUnsupported Category = "unsupported"
	CategoryExternal    Category = "external"
)

// Stable error codes, one per failure named in spec §4.4.5, §4.2, §4.3, §4.5.
const (
	CodeSlotKindMismatch    = "SLOT_KIND_MISMATCH"
	CodeRequiredSlotEmpty   = "REQUIRED_SLOT_EMPTY"
	CodeUnknownSlotKind     = "UNKNOWN_SLOT_KIND"
	CodeMissingOutput       = "MISSING_OUTPUT"
	CodeSortGap             = "SORT_GAP"
	CodeWorkflowCyclic      = "WORKFLOW_CYCLIC"
	CodeMismatchedInputKind = "MISMATCHED_INPUT_KIND"

	CodeNoSuchNode     = "NO_SUCH_NODE"
	CodeNoSuchSlot     = "NO_SUCH_SLOT"
	CodeNoSuchMaterial = "NO_SUCH_MATERIAL"
	CodeNoSuchCollector = "NO_SUCH_COLLECTOR"
	CodeNoSuchMove     = "NO_SUCH_MOVE"

	CodeUnsupportedRefChain    = "UNSUPPORTED_REF_CHAIN"
	CodeMismatchedCollectTarget = "MISMATCHED_COLLECT_TARGET"

	CodeRepoFailed         = "REPO_FAILED"
	CodeTransportFailed    = "TRANSPORT_FAILED"
	CodePackageFetchFailed = "PACKAGE_FETCH_FAILED"
)

var codeCategory = map[string]Category{
	CodeSlotKindMismatch:    CategoryInput,
	CodeRequiredSlotEmpty:   CategoryInput,
	CodeUnknownSlotKind:     CategoryInput,
	CodeMissingOutput:       CategoryInput,
	CodeSortGap:             CategoryInput,
	CodeWorkflowCyclic:      CategoryInput,
	CodeMismatchedInputKind: CategoryInput,

	CodeNoSuchNode:      CategoryLookup,
	CodeNoSuchSlot:      CategoryLookup,
	CodeNoSuchMaterial:  CategoryLookup,
	CodeNoSuchCollector: CategoryLookup,
	CodeNoSuchMove:      CategoryLookup,

	CodeUnsupportedRefChain:     CategoryUnsupported,
	CodeMismatchedCollectTarget: CategoryUnsupported,

	CodeRepoFailed:         CategoryExternal,
	CodeTransportFailed:    CategoryExternal,
	CodePackageFetchFailed: CategoryExternal,
}

// KernelError is the concrete type behind every error the kernel returns.
type KernelError struct {
	Code    string
	Message string
	Cause   error
}

func (e *KernelError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *KernelError) Unwrap() error {
	return e.Cause
}

// Category returns the propagation-policy category for this error's code.
func (e *KernelError) Category() Category {
	return codeCategory[e.Code]
}

// Retryable reports whether the caller should retry with backoff (§7:
// external failures only).
func (e *KernelError) Retryable() bool {
	return e.Category() == CategoryExternal
}

// New builds a KernelError with the given stable code.
func New(code, message string, cause error) *KernelError {
	return &KernelError{Code: code, Message: message, Cause: cause}
}

func SlotKindMismatch(message string) *KernelError { return New(CodeSlotKindMismatch, message, nil) }
func RequiredSlotEmpty(message string) *KernelError {
	return New(CodeRequiredSlotEmpty, message, nil)
}
func UnknownSlotKind(message string) *KernelError { return New(CodeUnknownSlotKind, message, nil) }
func MissingOutput(nth int) *KernelError {
	return New(CodeMissingOutput, fmt.Sprintf("no output prepared at index %d", nth), nil)
}
func SortGap(message string) *KernelError          { return New(CodeSortGap, message, nil) }
func WorkflowCyclic(message string) *KernelError   { return New(CodeWorkflowCyclic, message, nil) }
func MismatchedInputKind(message string) *KernelError {
	return New(CodeMismatchedInputKind, message, nil)
}

func NoSuchNode(id string) *KernelError {
	return New(CodeNoSuchNode, fmt.Sprintf("node %s not found", id), nil)
}
func NoSuchSlot(descriptor string) *KernelError {
	return New(CodeNoSuchSlot, fmt.Sprintf("slot %q not found", descriptor), nil)
}
func NoSuchMaterial(descriptor string) *KernelError {
	return New(CodeNoSuchMaterial, fmt.Sprintf("material %q not found", descriptor), nil)
}
func NoSuchCollector(descriptor string) *KernelError {
	return New(CodeNoSuchCollector, fmt.Sprintf("collector %q not found", descriptor), nil)
}
func NoSuchMove(moveID string) *KernelError {
	return New(CodeNoSuchMove, fmt.Sprintf("move %q not found", moveID), nil)
}

func UnsupportedRefChain(message string) *KernelError {
	return New(CodeUnsupportedRefChain, message, nil)
}
func MismatchedCollectTarget(message string) *KernelError {
	return New(CodeMismatchedCollectTarget, message, nil)
}

func RepoFailed(cause error) *KernelError {
	return New(CodeRepoFailed, "repository operation failed", cause)
}
func TransportFailed(cause error) *KernelError {
	return New(CodeTransportFailed, "task transport failed", cause)
}
func PackageFetchFailed(cause error) *KernelError {
	return New(CodePackageFetchFailed, "package manifest fetch failed", cause)
}

// Signal marks a non-error control outcome that a caller one level up
// converts to success. The only signal in the kernel is FlashUpload (§4.5,
// §7): a file-move whose content hash already exists at the destination.
type Signal struct {
	Name    string
	Details map[string]any
}

func (s *Signal) Error() string {
	return fmt.Sprintf("signal: %s", s.Name)
}

// FlashUpload builds the flash-upload dedup signal carrying the hash, the
// meta id of the newly-registered move, and the id of the object that
// already existed at the destination.
func FlashUpload(hash, metaID, alreadyID string) *Signal {
	return &Signal{
		Name: "FlashUpload",
		Details: map[string]any{
			"hash":      hash,
			"metaId":    metaID,
			"alreadyId": alreadyID,
		},
	}
}

// AsSignal reports whether err is the FlashUpload signal, for callers that
// must treat it as success-by-dedup rather than failure.
func AsSignal(err error) (*Signal, bool) {
	s, ok := err.(*Signal)
	return s, ok
}

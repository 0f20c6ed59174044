package domain

import (
	"errors"
	"fmt"
)

// User-facing messages
const (
	MsgInvalidLogo    = "L'image fournie ne ressemble pas à un logo valide. Veuillez télécharger un logo d'entreprise."
	MsgAnalysisFailed = "Désolé, une erreur technique a interrompu la création de votre studio de marque."
	MsgQuotaExceeded  = "Limite atteinte : Vous avez déjà généré le maximum de studios autorisés."
)

var (
	ErrSessionBusy     = errors.New("studio session is busy")
	ErrProjectNotFound = errors.New("project not found")
)

// AuthenticationError means no usable identity was presented.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return "authentication failed: " + e.Err.Error()
	}
	return "authentication required"
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// QuotaExceededError is raised before analysis when the user owns Ceiling projects.
type QuotaExceededError struct {
	Count   int64
	Ceiling int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("project quota exceeded (%d/%d)", e.Count, e.Ceiling)
}

// InvalidInputError is raised when the upload is not a usable logo.
type InvalidInputError struct {
	Reason string
	Err    error
}

// NewInvalidInputError applies the default reason when reason is blank.
func NewInvalidInputError(reason string, err error) *InvalidInputError {
	if reason == "" {
		reason = MsgInvalidLogo
	}
	return &InvalidInputError{Reason: reason, Err: err}
}

func (e *InvalidInputError) Error() string { return e.Reason }

func (e *InvalidInputError) Unwrap() error { return e.Err }

// AnalysisError wraps any failure of the analysis phase.
type AnalysisError struct {
	Op  string
	Err error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed (%s): %v", e.Op, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// GenerationError is a per-asset generation failure.
type GenerationError struct {
	AssetKey string
	Blocked  bool // content-safety rejection
	Err      error
}

func (e *GenerationError) Error() string {
	if e.Blocked {
		return fmt.Sprintf("generation of %q blocked by safety filter: %v", e.AssetKey, e.Err)
	}
	return fmt.Sprintf("generation of %q failed: %v", e.AssetKey, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// StorageError is an object upload failure.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage upload %q failed: %v", e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// UserMessage maps an analysis-phase error to the text shown in the session.
func UserMessage(err error) string {
	var invalid *InvalidInputError
	var quota *QuotaExceededError
	switch {
	case errors.As(err, &invalid):
		return invalid.Reason
	case errors.As(err, &quota):
		return MsgQuotaExceeded
	default:
		return MsgAnalysisFailed
	}
}

package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationService validates domain objects before they are stored or run.
type ValidationService struct {
	validator *validator.Validate
}

// NewValidationService creates a validator that reports json field names and
// knows the backend_kind tag and the PII column rule.
func NewValidationService() *ValidationService {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("backend_kind", func(fl validator.FieldLevel) bool {
		return BackendKind(fl.Field().String()).Valid()
	})

	v.RegisterStructValidation(func(sl validator.StructLevel) {
		cm := sl.Current().Interface().(ColumnMapping)
		if !cm.IsPII {
			return
		}
		if cm.Category == "" {
			sl.ReportError(cm.Category, "pii_attribute", "Category", "pii_required", "")
			return
		}
		if !cm.Category.Known() {
			sl.ReportError(cm.Category, "pii_attribute", "Category", "pii_category", string(cm.Category))
		}
	}, ColumnMapping{})

	return &ValidationService{validator: v}
}

// ValidateStruct validates a struct and returns detailed error information.
func (vs *ValidationService) ValidateStruct(s any) error {
	err := vs.validator.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validation failed: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed validation: %s", fe.Namespace(), vs.getErrorMessage(fe)))
	}
	if hasUnknownCategory(verrs) {
		return fmt.Errorf("validation failed: %s: %w", strings.Join(msgs, "; "), ErrUnknownCategory)
	}
	return fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
}

// ValidateForExecution applies ValidateStruct and additionally requires at
// least one table mapping, each with at least one column mapping and no
// source or destination column named twice (case-insensitively).
func (vs *ValidationService) ValidateForExecution(w *Workflow) error {
	if err := vs.ValidateStruct(w); err != nil {
		return err
	}
	if len(w.TableMappings) == 0 {
		return errors.New("validation failed: workflow has no table mappings")
	}
	for i, tm := range w.TableMappings {
		if len(tm.Columns) == 0 {
			return fmt.Errorf("validation failed: table mapping %d (%s -> %s) has no column mappings",
				i, tm.SourceTable, tm.DestinationTable)
		}
		src := make(map[string]bool, len(tm.Columns))
		dst := make(map[string]bool, len(tm.Columns))
		for _, cm := range tm.Columns {
			s, d := strings.ToLower(cm.SourceColumn), strings.ToLower(cm.DestinationColumn)
			if src[s] {
				return fmt.Errorf("validation failed: table mapping %d (%s -> %s) has duplicate source column '%s'",
					i, tm.SourceTable, tm.DestinationTable, cm.SourceColumn)
			}
			if dst[d] {
				return fmt.Errorf("validation failed: table mapping %d (%s -> %s) has duplicate destination column '%s'",
					i, tm.SourceTable, tm.DestinationTable, cm.DestinationColumn)
			}
			src[s], dst[d] = true, true
		}
	}
	return nil
}

func hasUnknownCategory(verrs validator.ValidationErrors) bool {
	for _, fe := range verrs {
		if fe.Tag() == "pii_category" {
			return true
		}
	}
	return false
}

func (vs *ValidationService) getErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters long", err.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters long", err.Param())
	case "gte", "lte":
		return fmt.Sprintf("must be %s %s", err.Tag(), err.Param())
	case "backend_kind":
		return "must be one of: sql_server, azure_sql, postgresql, sqlite"
	case "pii_required":
		return "a PII column needs a category"
	case "pii_category":
		return fmt.Sprintf("unknown PII category %q", err.Param())
	default:
		return fmt.Sprintf("failed %s validation", err.Tag())
	}
}

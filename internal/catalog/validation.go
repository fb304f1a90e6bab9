package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError is a form rejected before any gateway call was made. It
// never reaches the store.
type ValidationError struct {
	Form   string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return fmt.Sprintf("catalog: invalid %s form: %s", e.Form, strings.Join(parts, "; "))
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func (e *ValidationError) add(field, reason string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = reason
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// checkStruct runs validator tags on v and collects failures into a
// ValidationError for form.
func checkStruct(v *validator.Validate, form string, in any) *ValidationError {
	ve := &ValidationError{Form: form}
	err := v.Struct(in)
	if err == nil {
		return ve
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		ve.add("form", err.Error())
		return ve
	}
	for _, fe := range fieldErrs {
		reason := fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		ve.add(fieldPath(fe.Namespace()), reason)
	}
	return ve
}

// fieldPath drops the struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// segmentReason reports why id cannot be sent as one URL path segment, or ""
// when it can. "." and ".." survive escaping but are cleaned out of the path.
func segmentReason(id string) string {
	switch id {
	case "":
		return "required"
	case ".", "..":
		return "path_segment"
	}
	return ""
}

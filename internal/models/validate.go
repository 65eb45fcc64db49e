package models

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// InvalidInputError reports malformed job or technician data rejected before scoring.
type InvalidInputError struct {
	Entity string
	ID     string
	Fields []string
}

func (e *InvalidInputError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid %s: %s", e.Entity, strings.Join(e.Fields, "; "))
	}
	return fmt.Sprintf("invalid %s %s: %s", e.Entity, e.ID, strings.Join(e.Fields, "; "))
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func v() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

func ValidateJob(j ServiceJob) error {
	return check("job", j.ID, j)
}

func ValidateTechnician(t Technician) error {
	return check("technician", t.ID, t)
}

func check(entity, id string, s any) error {
	err := v().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &InvalidInputError{Entity: entity, ID: id, Fields: []string{err.Error()}}
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return &InvalidInputError{Entity: entity, ID: id, Fields: fields}
}

package utils

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct runs the `validate` tags of any request payload. Gin's
// binding covers the JSON shape; this covers the semantic rules on nested
// structs the handlers build themselves.
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

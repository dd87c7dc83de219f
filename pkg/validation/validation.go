package validation

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/vinodismyname/crcalc/pkg/pagination"
)

var (
	v    *validator.Validate
	once sync.Once
)

// DatasetExtensions lists the source formats accepted by dataset_ext.
var DatasetExtensions = []string{".xlsx", ".xlsm", ".xltx", ".xltm", ".csv"}

func hasExt(s string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(s)))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// Validator returns a singleton validator with custom rules registered.
func Validator() *validator.Validate {
	once.Do(func() {
		v = validator.New()
		// Custom: data source path must be a workbook or CSV
		_ = v.RegisterValidation("dataset_ext", func(fl validator.FieldLevel) bool {
			return hasExt(fl.Field().String(), DatasetExtensions...)
		})
		// Custom: export target must be .xlsx
		_ = v.RegisterValidation("export_ext", func(fl validator.FieldLevel) bool {
			return hasExt(fl.Field().String(), ".xlsx")
		})
		// Custom: cursor must be decodable via pagination.DecodeCursor
		_ = v.RegisterValidation("cursor", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			if s == "" {
				return true // empty is allowed; use omitempty with this tag
			}
			if _, err := base64.RawURLEncoding.DecodeString(s); err != nil {
				return false
			}
			_, err := pagination.DecodeCursor(s)
			return err == nil
		})
	})
	return v
}

// ValidateStruct validates a struct and returns a user-friendly error string
// suitable for MCP tool errors. Returns empty string when valid.
func ValidateStruct(s any) string {
	err := Validator().Struct(s)
	if err == nil {
		return ""
	}
	ve, ok := err.(validator.ValidationErrors)
	if !ok || len(ve) == 0 {
		return "VALIDATION: invalid inputs"
	}
	fe := ve[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("VALIDATION: %s is required", field)
	case "required_without":
		return fmt.Sprintf("VALIDATION: %s is required (or supply cursor)", field)
	case "dataset_ext":
		return "UNSUPPORTED_FORMAT: path must be a workbook (.xlsx, .xlsm, .xltx, .xltm) or .csv file"
	case "export_ext":
		return "UNSUPPORTED_FORMAT: output_path must end in .xlsx"
	case "cursor":
		return "CURSOR_INVALID: failed to decode cursor; restart pagination from the first page"
	case "min", "max", "gte", "lte", "gt", "lt":
		return fmt.Sprintf("VALIDATION: %s must satisfy %s=%s", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("VALIDATION: invalid %s", field)
}

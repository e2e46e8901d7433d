// Package intake validates and normalizes order records arriving from the
// originating order system before they reach the scheduler.
package intake

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"slices"
	"strings"

	"github.com/dukex/prodflow/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

type Validator struct {
	validate *validator.Validate
	schema   *gojsonschema.Schema
}

func NewValidator() (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(orderSchema))
	if err != nil {
		return nil, err
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(jsonFieldName)

	return &Validator{validate: validate, schema: schema}, nil
}

// Normalize trims text fields, de-duplicates flags and validates the result.
func (v *Validator) Normalize(data models.OrderData) (models.OrderData, error) {
	data.OrderID = strings.TrimSpace(data.OrderID)
	data.Customer = strings.TrimSpace(data.Customer)
	data.Product = strings.TrimSpace(data.Product)
	data.SpecRef = strings.TrimSpace(data.SpecRef)

	if len(data.Flags) > 0 {
		flags := make([]string, len(data.Flags))
		for i, flag := range data.Flags {
			flags[i] = strings.TrimSpace(flag)
		}

		slices.Sort(flags)
		data.Flags = slices.Compact(flags)
	}

	var fields []FieldError

	if err := v.validate.Struct(data); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return models.OrderData{}, err
		}

		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fe.Field(), Reason: describe(fe)})
		}
	}

	if math.IsNaN(data.PriorityScore) || math.IsInf(data.PriorityScore, 0) {
		fields = append(fields, FieldError{Field: "priority_score", Reason: "must be a finite number"})
	}

	if len(fields) > 0 {
		return models.OrderData{}, &ValidationError{OrderID: data.OrderID, Fields: fields}
	}

	return data, nil
}

// Decode checks a raw JSON payload against the intake schema, then decodes and
// normalizes it.
func (v *Validator) Decode(payload []byte) (models.OrderData, error) {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return models.OrderData{}, Invalid("", "payload", "malformed JSON: "+err.Error())
	}

	if !result.Valid() {
		verr := &ValidationError{OrderID: peekOrderID(payload)}
		for _, re := range result.Errors() {
			verr.Fields = append(verr.Fields, FieldError{Field: re.Field(), Reason: re.Description()})
		}

		return models.OrderData{}, verr
	}

	var data models.OrderData
	if err := json.Unmarshal(payload, &data); err != nil {
		return models.OrderData{}, Invalid(peekOrderID(payload), "payload", err.Error())
	}

	return v.Normalize(data)
}

func peekOrderID(payload []byte) string {
	var probe struct {
		OrderID any `json:"order_id"`
	}

	if json.Unmarshal(payload, &probe) != nil {
		return ""
	}

	id, _ := probe.OrderID.(string)

	return id
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func jsonFieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "-" || name == "" {
		return field.Name
	}

	return name
}

package orders

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jogardn/order-summary/pkg/models"
)

// Pointer fields distinguish a missing key from a zero value.
type productRequest struct {
	ProductName *string      `json:"product_name" validate:"required"`
	Price       *numberField `json:"price" validate:"required,float"`
	Quantity    *numberField `json:"quantity" validate:"required,integer"`
}

type orderRequest struct {
	Email    *string          `json:"email" validate:"omitnil,email"`
	Products []productRequest `json:"products" validate:"required,dive"`
}

// orderEnvelope defers decoding of each product so type errors can be
// reported with the product's index.
type orderEnvelope struct {
	Email    json.RawMessage   `json:"email"`
	Products []json.RawMessage `json:"products"`
}

// numberField holds a JSON number, or a string containing one, as written.
// Anything else is kept verbatim and rejected by the float/integer tags.
type numberField string

func (n *numberField) UnmarshalJSON(data []byte) error {
	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
	}
	*n = numberField(raw)
	return nil
}

// FieldError is one entry of a 422 response. Loc is the path to the
// offending value, e.g. ["body", "products", 0, "quantity"].
type FieldError struct {
	Type string        `json:"type"`
	Loc  []interface{} `json:"loc"`
	Msg  string        `json:"msg"`
}

type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%v: %s", fe.Loc, fe.Msg))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func newValidationError(errs ...FieldError) *ValidationError {
	return &ValidationError{Errors: errs}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("float", isFloat); err != nil {
		panic(err)
	}
	if err := v.RegisterValidation("integer", isInteger); err != nil {
		panic(err)
	}
	return v
}

func isFloat(fl validator.FieldLevel) bool {
	_, err := parseFloat(fl.Field().String())
	return err == nil
}

// isInteger accepts whole numbers, including ones written as 2.0.
func isInteger(fl validator.FieldLevel) bool {
	_, err := parseInteger(fl.Field().String())
	return err == nil
}

// parseFloat accepts decimal notation only; strconv also takes hex floats.
func parseFloat(s string) (float64, error) {
	if strings.ContainsAny(s, "xX") {
		return 0, fmt.Errorf("%s is not a decimal number", s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s is not a finite number", s)
	}
	return f, nil
}

func parseInteger(s string) (int, error) {
	if n, err := strconv.ParseInt(s, 10, strconv.IntSize); err == nil {
		return int(n), nil
	}
	f, err := parseFloat(s)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%s is not an integer", s)
	}
	return int(f), nil
}

// DecodeOrder parses and validates a request body into an Order. The body
// must hold exactly one JSON object. Any failure is returned as a
// *ValidationError.
func DecodeOrder(body io.Reader) (models.Order, error) {
	dec := json.NewDecoder(body)

	var env orderEnvelope
	if err := dec.Decode(&env); err != nil {
		return models.Order{}, newValidationError(decodeError(err, "body"))
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return models.Order{}, newValidationError(FieldError{
			Type: "json_invalid",
			Loc:  []interface{}{"body"},
			Msg:  "JSON decode error: unexpected data after the request object",
		})
	}

	req, verr := env.request()
	if verr != nil {
		return models.Order{}, verr
	}

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return models.Order{}, fromValidatorErrors(verrs)
		}
		return models.Order{}, fmt.Errorf("failed to validate order: %w", err)
	}

	return req.toOrder(), nil
}

func (e orderEnvelope) request() (orderRequest, *ValidationError) {
	var req orderRequest
	verr := newValidationError()

	if len(e.Email) > 0 {
		if err := json.Unmarshal(e.Email, &req.Email); err != nil {
			verr.Errors = append(verr.Errors, decodeError(err, "body", "email"))
		}
	}

	if e.Products != nil {
		req.Products = make([]productRequest, len(e.Products))
		for i, raw := range e.Products {
			if err := json.Unmarshal(raw, &req.Products[i]); err != nil {
				verr.Errors = append(verr.Errors, decodeError(err, "body", "products", i))
			}
		}
	}

	if len(verr.Errors) > 0 {
		return orderRequest{}, verr
	}
	return req, nil
}

// toOrder expects a request that passed validation.
func (r orderRequest) toOrder() models.Order {
	order := models.Order{
		Email:    r.Email,
		Products: make([]models.Product, 0, len(r.Products)),
	}
	for _, p := range r.Products {
		price, _ := parseFloat(string(*p.Price))
		quantity, _ := parseInteger(string(*p.Quantity))
		order.Products = append(order.Products, models.Product{
			ProductName: *p.ProductName,
			Price:       price,
			Quantity:    quantity,
		})
	}
	return order
}

// decodeError describes err at loc. Type errors extend loc with the
// offending field path.
func decodeError(err error, loc ...interface{}) FieldError {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	switch {
	case errors.Is(err, io.EOF):
		return FieldError{Type: "missing", Loc: loc, Msg: "Field required"}
	case errors.As(err, &syntaxErr):
		return FieldError{
			Type: "json_invalid",
			Loc:  append(loc, syntaxErr.Offset),
			Msg:  "JSON decode error",
		}
	case errors.As(err, &typeErr):
		if typeErr.Field != "" {
			for _, part := range strings.Split(typeErr.Field, ".") {
				loc = append(loc, part)
			}
		}
		errType, msg := describeKind(typeErr.Type)
		return FieldError{Type: errType, Loc: loc, Msg: msg}
	default:
		return FieldError{Type: "json_invalid", Loc: loc, Msg: "JSON decode error"}
	}
}

func describeKind(t reflect.Type) (string, string) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "string_type", "Input should be a valid string"
	case reflect.Float32, reflect.Float64:
		return "float_type", "Input should be a valid number"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "int_type", "Input should be a valid integer"
	case reflect.Slice, reflect.Array:
		return "list_type", "Input should be a valid list"
	case reflect.Struct, reflect.Map:
		return "model_type", "Input should be a valid dictionary"
	default:
		return "type_error", "Input has an invalid type"
	}
}

func fromValidatorErrors(verrs validator.ValidationErrors) *ValidationError {
	out := newValidationError()
	for _, fe := range verrs {
		errType, msg := describeRule(fe)
		out.Errors = append(out.Errors, FieldError{
			Type: errType,
			Loc:  append([]interface{}{"body"}, namespaceLoc(fe.Namespace())...),
			Msg:  msg,
		})
	}
	return out
}

// namespaceLoc turns "orderRequest.products[1].price" into ["products", 1, "price"].
func namespaceLoc(namespace string) []interface{} {
	parts := strings.Split(namespace, ".")
	if len(parts) > 0 {
		parts = parts[1:]
	}

	loc := make([]interface{}, 0, len(parts))
	for _, part := range parts {
		name := part
		var indexes []interface{}
		if open := strings.IndexByte(part, '['); open >= 0 {
			name = part[:open]
			for _, idx := range strings.Split(strings.Trim(part[open:], "[]"), "][") {
				if n, err := strconv.Atoi(idx); err == nil {
					indexes = append(indexes, n)
				} else {
					indexes = append(indexes, idx)
				}
			}
		}
		loc = append(loc, name)
		loc = append(loc, indexes...)
	}
	return loc
}

func describeRule(fe validator.FieldError) (string, string) {
	switch fe.Tag() {
	case "required":
		return "missing", "Field required"
	case "email":
		return "value_error", "value is not a valid email address"
	case "float":
		return "float_parsing", "Input should be a valid number, unable to parse string as a number"
	case "integer":
		if _, err := parseFloat(fmt.Sprint(fe.Value())); err == nil {
			return "int_from_float", "Input should be a valid integer, got a number with a fractional part"
		}
		return "int_parsing", "Input should be a valid integer, unable to parse string as an integer"
	default:
		return "value_error", fmt.Sprintf("failed on the '%s' rule", fe.Tag())
	}
}

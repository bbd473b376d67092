package budgetrequest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"budget-backend/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type ItemInput struct {
	ItemName    string          `json:"item_name" validate:"required,max=200"`
	Quantity    int             `json:"quantity" validate:"gte=1"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	Supplier    string          `json:"supplier" validate:"max=200"`
	Priority    models.Priority `json:"priority" validate:"omitempty,priority"`
	IsEssential bool            `json:"is_essential"`
}

// CreateInput is the canonical create payload, whatever spelling the
// client used.
type CreateInput struct {
	Title           string            `json:"title" validate:"required,max=200"`
	Description     string            `json:"description"`
	Justification   string            `json:"justification"`
	Department      models.Department `json:"department" validate:"required,department"`
	AmountRequested decimal.Decimal   `json:"amount_requested"`
	Priority        models.Priority   `json:"priority" validate:"omitempty,priority"`
	FiscalYear      int               `json:"fiscal_year" validate:"omitempty,gte=2000,lte=2100"`
	FiscalPeriod    string            `json:"fiscal_period" validate:"omitempty,oneof=Q1 Q2 Q3 Q4 H1 H2 FY"`
	Submit          bool              `json:"submit"`
	Items           []ItemInput       `json:"items" validate:"dive"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("department", func(fl validator.FieldLevel) bool {
		return models.Department(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		return models.Priority(fl.Field().String()).Valid()
	})
	return v
}

// NormalizeCreate decodes a create body. Both snake_case and camelCase keys
// are accepted; when both spellings carry a value the snake_case one wins.
func NormalizeCreate(raw []byte) (CreateInput, error) {
	var in CreateInput

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil || body == nil {
		return in, invalid("body", "must be a JSON object")
	}
	return normalizeCreate(body)
}

func normalizeCreate(body map[string]any) (CreateInput, error) {
	var in CreateInput

	in.Title = strings.TrimSpace(str(pick(body, "title")))
	in.Description = strings.TrimSpace(str(pick(body, "description")))
	in.Justification = strings.TrimSpace(str(pick(body, "justification")))
	in.Department = models.Department(strings.ToLower(strings.TrimSpace(str(pick(body, "department")))))
	in.Priority = models.Priority(strings.ToLower(strings.TrimSpace(str(pick(body, "priority")))))
	in.FiscalPeriod = strings.ToUpper(strings.TrimSpace(str(pick(body, "fiscal_period", "fiscalPeriod"))))

	var err error
	if v := pick(body, "fiscal_year", "fiscalYear"); v != nil {
		if in.FiscalYear, err = toInt(v); err != nil {
			return in, invalid("fiscal_year", "must be a year")
		}
	}
	if v := pick(body, "submit", "submit_on_create", "submitOnCreate"); v != nil {
		in.Submit = toBool(v)
	}

	rawItems, _ := pick(body, "items", "item_allocations", "itemAllocations").([]any)
	for i, ri := range rawItems {
		m, ok := ri.(map[string]any)
		if !ok {
			return in, invalid(fmt.Sprintf("items[%d]", i), "must be an object")
		}
		item, err := normalizeItem(m, i)
		if err != nil {
			return in, err
		}
		in.Items = append(in.Items, item)
	}

	if v := pick(body, "amount_requested", "amountRequested", "amount"); v != nil {
		if in.AmountRequested, err = toDecimal(v); err != nil {
			return in, invalid("amount_requested", "must be a number")
		}
	} else if len(in.Items) > 0 {
		for _, it := range in.Items {
			in.AmountRequested = in.AmountRequested.Add(it.TotalCost)
		}
	}

	return in, nil
}

func normalizeItem(m map[string]any, i int) (ItemInput, error) {
	field := func(name string) string { return fmt.Sprintf("items[%d].%s", i, name) }
	var (
		it  ItemInput
		err error
	)

	it.ItemName = strings.TrimSpace(str(pick(m, "item_name", "itemName", "name")))
	it.Supplier = strings.TrimSpace(str(pick(m, "supplier", "supplier_name", "supplierName")))
	it.Priority = models.Priority(strings.ToLower(strings.TrimSpace(str(pick(m, "priority")))))
	if v := pick(m, "is_essential", "isEssential"); v != nil {
		it.IsEssential = toBool(v)
	}

	it.Quantity = 1
	if v := pick(m, "quantity", "qty"); v != nil {
		if it.Quantity, err = toInt(v); err != nil {
			return it, invalid(field("quantity"), "must be an integer")
		}
	}
	if v := pick(m, "unit_cost", "unitCost"); v != nil {
		if it.UnitCost, err = toDecimal(v); err != nil {
			return it, invalid(field("unit_cost"), "must be a number")
		}
	}
	if v := pick(m, "total_cost", "totalCost"); v != nil {
		if it.TotalCost, err = toDecimal(v); err != nil {
			return it, invalid(field("total_cost"), "must be a number")
		}
	} else {
		it.TotalCost = it.UnitCost.Mul(decimal.NewFromInt(int64(it.Quantity)))
	}
	return it, nil
}

// Validate checks a normalized input. Department must already be defaulted.
func Validate(in CreateInput) error {
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return invalid(fieldPath(fe.Namespace()), "failed %q check", fe.Tag())
		}
		return invalid("body", "%v", err)
	}
	if !in.AmountRequested.IsPositive() {
		return invalid("amount_requested", "must be greater than 0")
	}
	if err := checkMoney("amount_requested", in.AmountRequested); err != nil {
		return err
	}
	for i, it := range in.Items {
		if it.UnitCost.IsNegative() {
			return invalid(fmt.Sprintf("items[%d].unit_cost", i), "must not be negative")
		}
		if it.TotalCost.IsNegative() {
			return invalid(fmt.Sprintf("items[%d].total_cost", i), "must not be negative")
		}
		if err := checkMoney(fmt.Sprintf("items[%d].unit_cost", i), it.UnitCost); err != nil {
			return err
		}
		if err := checkMoney(fmt.Sprintf("items[%d].total_cost", i), it.TotalCost); err != nil {
			return err
		}
	}
	return nil
}

// Money columns are numeric(15,2).
var maxMoney = decimal.New(1, 13)

func checkMoney(field string, d decimal.Decimal) error {
	if !d.Equal(d.Round(2)) {
		return invalid(field, "must have at most 2 decimal places")
	}
	if d.Abs().GreaterThanOrEqual(maxMoney) {
		return invalid(field, "must be less than %s", maxMoney.String())
	}
	return nil
}

// fieldPath turns "CreateInput.items[0].item_name" into "items[0].item_name".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// pick returns the first key holding a non-empty value.
func pick(m map[string]any, keys ...string) any {
	if len(keys) == 1 {
		keys = append(keys, camel(keys[0]))
	}
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v
	}
	return nil
}

func camel(snake string) string {
	parts := strings.Split(snake, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case json.Number:
		return decimal.NewFromString(t.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(t))
	case float64:
		return decimal.NewFromFloat(t), nil
	}
	return decimal.Zero, fmt.Errorf("not a number: %v", v)
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case json.Number:
		n, err := t.Int64()
		return int(n), err
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	case float64:
		if t != float64(int(t)) {
			return 0, fmt.Errorf("not an integer: %v", t)
		}
		return int(t), nil
	}
	return 0, fmt.Errorf("not an integer: %v", v)
}

func toBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	case json.Number:
		return t.String() != "0"
	}
	return false
}

// NormalizeApprove decodes an approval body. An empty body approves the
// requested amount with no buffer.
func NormalizeApprove(raw []byte) (ApproveInput, error) {
	var in ApproveInput
	body, err := decodeObject(raw)
	if err != nil {
		return in, err
	}
	if v := pick(body, "reserved_amount", "reservedAmount"); v != nil {
		d, err := toDecimal(v)
		if err != nil {
			return in, invalid("reserved_amount", "must be a number")
		}
		in.ReservedAmount = &d
	}
	if v := pick(body, "buffer_percentage", "bufferPercentage"); v != nil {
		d, err := toDecimal(v)
		if err != nil {
			return in, invalid("buffer_percentage", "must be a number")
		}
		in.BufferPercentage = &d
	}
	in.ReviewNotes = str(pick(body, "review_notes", "reviewNotes", "notes"))
	return in, nil
}

func NormalizeReject(raw []byte) (RejectInput, error) {
	body, err := decodeObject(raw)
	if err != nil {
		return RejectInput{}, err
	}
	return RejectInput{ReviewNotes: str(pick(body, "review_notes", "reviewNotes", "notes", "reason"))}, nil
}

func decodeObject(raw []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil || body == nil {
		return nil, invalid("body", "must be a JSON object")
	}
	return body, nil
}

// Package filter provides AIP-160 filter expression parsing for gauge
// listings, translating expressions into structured storage queries.
package filter

import (
	"fmt"
	"strings"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	"github.com/kellyenterprises/gaugehub/internal/gauge/domain"
	"github.com/kellyenterprises/gaugehub/internal/gauge/storage"
)

// GaugeDeclarations returns the field declarations for gauge filtering.
func GaugeDeclarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("status", filtering.TypeString),
		filtering.DeclareIdent("class", filtering.TypeString),
		filtering.DeclareIdent("location", filtering.TypeString),
		filtering.DeclareIdent("holder_id", filtering.TypeString),
		filtering.DeclareIdent("set_id", filtering.TypeString),
		filtering.DeclareIdent("overdue", filtering.TypeBool),
		filtering.DeclareIdent("spare", filtering.TypeBool),
		// The checker resolves boolean literals as identifiers.
		filtering.DeclareIdent("true", filtering.TypeBool),
		filtering.DeclareIdent("false", filtering.TypeBool),
	)
}

// classNames maps filter class values to equipment classes.
var classNames = map[string]domain.EquipmentClass{
	"thread_plug": domain.EquipmentClassThreadPlug,
	"thread_ring": domain.EquipmentClassThreadRing,
	"npt_plug":    domain.EquipmentClassNPTPlug,
	"npt_ring":    domain.EquipmentClassNPTRing,
}

// storedStatuses lists the status values accepted in filters. The derived
// calibration_due overlay is excluded; callers filter overdue gauges with the
// overdue field instead.
var storedStatuses = map[string]domain.Status{
	"available":           domain.StatusAvailable,
	"checked_out":         domain.StatusCheckedOut,
	"in_transit":          domain.StatusInTransit,
	"pending_qc":          domain.StatusPendingQC,
	"sealed":              domain.StatusSealed,
	"out_for_calibration": domain.StatusOutForCalibration,
	"pending_certificate": domain.StatusPendingCertificate,
	"pending_release":     domain.StatusPendingRelease,
	"out_of_service":      domain.StatusOutOfService,
	"retired":             domain.StatusRetired,
	"returned_customer":   domain.StatusReturnedCustomer,
}

// ParseGaugeFilter parses an AIP-160 filter expression into a gauge query.
// Returns a zero query for an empty filter string. Supported shape is a
// conjunction of field comparisons, with OR allowed between status
// equalities only.
func ParseGaugeFilter(filterStr string) (storage.GaugeQuery, error) {
	if strings.TrimSpace(filterStr) == "" {
		return storage.GaugeQuery{}, nil
	}

	decls, err := GaugeDeclarations()
	if err != nil {
		return storage.GaugeQuery{}, fmt.Errorf("create declarations: %w", err)
	}

	parsed, err := filtering.ParseFilterString(filterStr, decls)
	if err != nil {
		return storage.GaugeQuery{}, fmt.Errorf("parse filter: %w", err)
	}

	var query storage.GaugeQuery
	if err := applyExpr(&query, parsed.CheckedExpr.Expr); err != nil {
		return storage.GaugeQuery{}, err
	}
	return query, nil
}

func applyExpr(query *storage.GaugeQuery, e *expr.Expr) error {
	if e == nil {
		return nil
	}

	call, ok := e.ExprKind.(*expr.Expr_CallExpr)
	if !ok {
		return fmt.Errorf("unsupported expression type: %T", e.ExprKind)
	}

	switch call.CallExpr.Function {
	case "_&&_", "AND":
		for _, arg := range call.CallExpr.Args {
			if err := applyExpr(query, arg); err != nil {
				return err
			}
		}
		return nil
	case "_||_", "OR":
		return applyStatusDisjunction(query, call.CallExpr.Args)
	case "_==_", "=":
		return applyComparison(query, call.CallExpr.Args)
	default:
		return fmt.Errorf("unsupported function: %s", call.CallExpr.Function)
	}
}

// applyStatusDisjunction handles OR, which is only meaningful between
// status equalities: it widens the accepted status set.
func applyStatusDisjunction(query *storage.GaugeQuery, args []*expr.Expr) error {
	for _, arg := range args {
		call, ok := arg.ExprKind.(*expr.Expr_CallExpr)
		if !ok {
			return fmt.Errorf("OR supports status equalities only")
		}
		switch call.CallExpr.Function {
		case "_||_", "OR":
			if err := applyStatusDisjunction(query, call.CallExpr.Args); err != nil {
				return err
			}
		case "_==_", "=":
			field, value, err := comparisonOperands(call.CallExpr.Args)
			if err != nil {
				return err
			}
			if field != "status" {
				return fmt.Errorf("OR supports status equalities only, got field %s", field)
			}
			if err := appendStatus(query, value); err != nil {
				return err
			}
		default:
			return fmt.Errorf("OR supports status equalities only")
		}
	}
	return nil
}

func applyComparison(query *storage.GaugeQuery, args []*expr.Expr) error {
	field, value, err := comparisonOperands(args)
	if err != nil {
		return err
	}

	switch field {
	case "status":
		return appendStatus(query, value)
	case "class":
		name, ok := value.(string)
		if !ok {
			return fmt.Errorf("class value must be a string")
		}
		class, known := classNames[name]
		if !known {
			return fmt.Errorf("unknown equipment class: %s", name)
		}
		query.Class = class
	case "location":
		name, ok := value.(string)
		if !ok {
			return fmt.Errorf("location value must be a string")
		}
		query.Location = name
	case "holder_id":
		name, ok := value.(string)
		if !ok {
			return fmt.Errorf("holder_id value must be a string")
		}
		query.HolderID = name
	case "set_id":
		name, ok := value.(string)
		if !ok {
			return fmt.Errorf("set_id value must be a string")
		}
		query.SetID = name
	case "overdue":
		flag, ok := value.(bool)
		if !ok {
			return fmt.Errorf("overdue value must be a boolean")
		}
		query.OverdueOnly = flag
	case "spare":
		flag, ok := value.(bool)
		if !ok {
			return fmt.Errorf("spare value must be a boolean")
		}
		query.SpareOnly = flag
	default:
		return fmt.Errorf("unknown field: %s", field)
	}
	return nil
}

func appendStatus(query *storage.GaugeQuery, value any) error {
	name, ok := value.(string)
	if !ok {
		return fmt.Errorf("status value must be a string")
	}
	status, known := storedStatuses[name]
	if !known {
		return fmt.Errorf("unknown status: %s", name)
	}
	query.Statuses = append(query.Statuses, status)
	return nil
}

func comparisonOperands(args []*expr.Expr) (string, any, error) {
	if len(args) != 2 {
		return "", nil, fmt.Errorf("comparison requires 2 arguments")
	}

	field, err := extractFieldName(args[0])
	if err != nil {
		return "", nil, err
	}

	value, err := extractValue(args[1])
	if err != nil {
		return "", nil, err
	}
	return field, value, nil
}

func extractFieldName(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_IdentExpr:
		return kind.IdentExpr.Name, nil
	default:
		return "", fmt.Errorf("expected identifier, got %T", kind)
	}
}

func extractValue(e *expr.Expr) (any, error) {
	if e == nil {
		return nil, fmt.Errorf("nil expression")
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_ConstExpr:
		return extractConstValue(kind.ConstExpr)
	case *expr.Expr_IdentExpr:
		// Boolean literals arrive as idents, not constants.
		switch kind.IdentExpr.Name {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("expected constant, got identifier %s", kind.IdentExpr.Name)
	default:
		return nil, fmt.Errorf("expected constant, got %T", kind)
	}
}

func extractConstValue(c *expr.Constant) (any, error) {
	if c == nil {
		return nil, fmt.Errorf("nil constant")
	}

	switch kind := c.ConstantKind.(type) {
	case *expr.Constant_StringValue:
		return kind.StringValue, nil
	case *expr.Constant_BoolValue:
		return kind.BoolValue, nil
	default:
		return nil, fmt.Errorf("unsupported constant type: %T", kind)
	}
}

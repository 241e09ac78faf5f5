package extract

import (
	"math/big"

	"go.starlark.net/syntax"

	"scenetuner/internal/domain"
)

// Parse decodes the PARAMETERS declaration of src into parameter specs in
// declaration order. A name declared twice keeps its first position and its
// last definition.
func Parse(src []byte) ([]domain.ParameterSpec, error) {
	decl, err := Locate(src)
	if err != nil {
		return nil, err
	}
	return decl.Specs(), nil
}

// Specs decodes every entry of the declaration.
func (d *Declaration) Specs() []domain.ParameterSpec {
	specs := make([]domain.ParameterSpec, 0, len(d.Entries))
	index := make(map[string]int, len(d.Entries))
	for _, e := range d.Entries {
		spec := e.Spec()
		if i, ok := index[e.Name]; ok {
			spec.Line = specs[i].Line
			specs[i] = spec
			continue
		}
		index[e.Name] = len(specs)
		specs = append(specs, spec)
	}
	return specs
}

// Spec decodes the entry's metadata. Sub-expressions that are not literals
// decode to null rather than being evaluated.
func (e Entry) Spec() domain.ParameterSpec {
	spec := domain.ParameterSpec{Name: e.Name, Line: e.Line}
	seen := make(map[string]bool, len(e.meta))
	for _, m := range e.meta {
		key := metaKey(m)
		if key == "" {
			continue
		}
		if !seen[key] {
			seen[key] = true
			spec.Keys = append(spec.Keys, key)
		}
		switch key {
		case domain.KeyValue:
			spec.Value = decodeValue(m.Value)
		case domain.KeyType:
			spec.TypeToken = typeToken(m.Value)
			spec.Type = domain.ParseParamType(spec.TypeToken)
		case domain.KeyUnit:
			spec.Unit = decodeValue(m.Value).Str()
		case domain.KeyDescription:
			spec.Description = decodeValue(m.Value).Str()
		case domain.KeyMin:
			spec.Min = decodeBound(m.Value)
		case domain.KeyMax:
			spec.Max = decodeBound(m.Value)
		}
	}
	return spec
}

func decodeValue(expr syntax.Expr) domain.Value {
	switch x := unparen(expr).(type) {
	case *syntax.Literal:
		switch v := x.Value.(type) {
		case int64:
			return domain.Int(v)
		case *big.Int:
			if v.IsInt64() {
				return domain.Int(v.Int64())
			}
			f, _ := new(big.Float).SetInt(v).Float64()
			return domain.Float(f)
		case float64:
			return domain.Float(v)
		case string:
			return domain.String(v)
		}
	case *syntax.Ident:
		switch x.Name {
		case "True":
			return domain.Bool(true)
		case "False":
			return domain.Bool(false)
		}
	case *syntax.UnaryExpr:
		operand := decodeValue(x.X)
		switch {
		case x.Op == syntax.PLUS && operand.IsNumber():
			return operand
		case x.Op == syntax.MINUS && operand.Kind() == domain.KindInt:
			return domain.Int(-operand.Int())
		case x.Op == syntax.MINUS && operand.Kind() == domain.KindFloat:
			f, _ := operand.Number()
			return domain.Float(-f)
		}
	}
	return domain.Null()
}

func decodeBound(expr syntax.Expr) *float64 {
	f, ok := decodeValue(expr).Number()
	if !ok {
		return nil
	}
	return &f
}

// typeToken returns the type marker as written. Only bare identifiers are
// type markers; anything else yields a placeholder that maps to TypeUnknown.
func typeToken(expr syntax.Expr) string {
	if id, ok := unparen(expr).(*syntax.Ident); ok {
		return id.Name
	}
	return "<expr>"
}
